package main

import (
	"github.com/spf13/cobra"

	"github.com/mirageui/mirage/internal/build"
	"github.com/mirageui/mirage/internal/config"
	"github.com/mirageui/mirage/internal/metrics"
	"github.com/mirageui/mirage/pkg/devserver"
)

func serveCmd() *cobra.Command {
	var (
		addr     string
		unitsDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, then run the development server",
		Long: `Build all units, then serve the generated modules and run the
authoritative sync endpoint.

Endpoints:
  /artifacts/*    generated client modules (immutable cache)
  /manifest.json  unit → artifact mapping
  /sync           websocket sync sessions
  /metrics        Prometheus metrics
  /healthz        liveness probe`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, unitsDir)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from mirage.json)")
	cmd.Flags().StringVar(&unitsDir, "units", "", "Units directory (default from mirage.json)")

	return cmd
}

func runServe(addr, unitsDir string) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}
	if unitsDir != "" {
		cfg.Units = unitsDir
	}
	if addr == "" {
		addr = cfg.DevAddress()
	}

	metrics.Init(nil)

	ctx, cancel := signalContext()
	defer cancel()

	res, err := build.New(cfg, build.Options{}).Run(ctx)
	if err != nil {
		return err
	}
	for _, u := range res.Failed() {
		warn("%s: %s", u.Unit.Name, u.Err)
	}

	srv := devserver.New(devserver.Config{
		Addr:        addr,
		ArtifactDir: cfg.OutputPath(),
	})
	for _, u := range res.Units {
		if u.Err == nil && u.Graph != nil {
			srv.Register(u.Unit, u.Graph)
		}
	}

	info("serving on http://%s", addr)
	return srv.ListenAndServe(ctx)
}
