package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"shopcore/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "shopcore",
	Short: "Shopcore CLI - invoice reconciliation and sales ingestion for small retail stores",
	Long: `Shopcore CLI processes supplier invoices and POS sales exports for a
small retail store.

Invoices go through OCR, structured extraction, catalog matching, pricing
alerts, and total validation; the confirm step commits the received stock
and new cost prices to the catalog. Sales CSV exports are matched against
the catalog and decrement tracked inventory.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Shopcore CLI executed")

		fmt.Println("Welcome to Shopcore CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
