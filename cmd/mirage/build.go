package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/mirageui/mirage/internal/build"
	"github.com/mirageui/mirage/internal/config"
	"github.com/mirageui/mirage/internal/metrics"
	"github.com/mirageui/mirage/pkg/artifact"
)

func buildCmd() *cobra.Command {
	var (
		unitsDir string
		outDir   string
		publish  bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile units into client runtime modules",
		Long: `Load unit declarations, build their dependency graphs, and write
generated client modules content-addressed into the output directory.

Units that fail are reported individually; the rest of the project
still builds.

Examples:
  mirage build
  mirage build --units ui --out dist
  mirage build --s3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(unitsDir, outDir, publish)
		},
	}

	cmd.Flags().StringVar(&unitsDir, "units", "", "Units directory (default from mirage.json)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default from mirage.json)")
	cmd.Flags().BoolVar(&publish, "s3", false, "Publish written artifacts to the configured S3 bucket")

	return cmd
}

func runBuild(unitsDir, outDir string, publish bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}
	if unitsDir != "" {
		cfg.Units = unitsDir
	}
	if outDir != "" {
		cfg.Artifacts.Output = outDir
	}

	metrics.Init(nil)

	opt := build.Options{}
	if publish {
		sink, err := s3Sink(cfg)
		if err != nil {
			return err
		}
		opt.Sink = sink
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := build.New(cfg, opt).Run(ctx)
	if err != nil {
		return err
	}

	for _, u := range res.Units {
		switch {
		case u.Err != nil:
			warn("%s: %s", u.Unit.Name, u.Err)
		case u.Module == nil:
			info("%s: server-only, no module", u.Unit.Name)
		case u.Skipped:
			info("%s: unchanged (%s)", u.Unit.Name, u.Artifact)
		default:
			success("%s → %s", u.Unit.Name, u.Artifact)
		}
	}

	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d units failed", len(failed), len(res.Units))
	}
	success("built %d units in %s", len(res.Units), res.Duration.Round(time.Millisecond))
	return nil
}

func s3Sink(cfg *config.Config) (artifact.Sink, error) {
	if !cfg.HasS3() {
		return nil, fmt.Errorf("--s3 requires an s3 section in %s", config.ConfigFileName)
	}
	client := s3.New(s3.Options{Region: cfg.S3.Region})
	return artifact.NewS3Sink(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
