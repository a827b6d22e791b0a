package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "resource-cli",
	Short: "Community resource ingestion and verification pipeline",
	Long:  "Imports community resource directories from external sources, normalizes them to the canonical schema, verifies each candidate with tiered automated checks, and submits approved records to the platform.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
