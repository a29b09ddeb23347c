// Package cmd defines and implements the CLI commands for the venue-crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venue-crawler",
		Short: "Scrapes vegan-friendly restaurant listings by city.",
		Long: `venue-crawler walks configured city listing pages, extracts and
validates one record per venue card, and writes per-city JSON artifacts
and CSV extracts. It fetches one page at a time with mandatory delays
between requests.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./venue-crawler.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so a crawl in flight finishes its current page and exports what
// it has.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
