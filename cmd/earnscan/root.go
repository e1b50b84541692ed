package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for earnscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "earnscan",
		Short: "Scrape an earnings announcement schedule",
		Long: `earnscan collects the companies of an earnings announcement schedule
together with their progress rate, PER, PBR and dividend yield.

Listing pages and detail pages are fetched concurrently under a global
concurrency limit and a per-host request spacing. Failed requests are
retried with exponential backoff. Records are streamed to CSV, JSON Lines
and a SQLite run store as they are completed.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
