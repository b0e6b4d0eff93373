package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mirageui/mirage/internal/config"
)

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the artifact output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromWorkingDir()
			if err != nil {
				return err
			}
			if err := os.RemoveAll(cfg.OutputPath()); err != nil {
				return err
			}
			success("removed %s", cfg.OutputPath())
			return nil
		},
	}
}
