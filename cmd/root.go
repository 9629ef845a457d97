package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadtrack",
	Short: "Lead capture and attribution tracking agent",
	Long:  "Captures leads with WhatsApp reachability validation, frozen campaign attribution, and fan-out to CRM, ad pixel, and backend ingestion.",
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
