package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"salesdash/internal/logger"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "salesdash",
	Short: "Sales analytics over an accounting provider",
	Long: `salesdash pulls invoices, credit notes, payments and catalog items from
the accounting provider and aggregates them into trend series, product
breakdowns and month-over-month / year-over-year comparisons.

Configuration is read from the environment (and .env when present).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("tenant", "", "provider tenant id (default PROVIDER_TENANT_ID)")
}
