// Package cmd defines the CLI commands for the crawlfleet executable.
package cmd

import (
	"context"
	"errors"
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
		Use:   "crawlfleet",
		Short: "A distributed keyword-guided web crawler.",
		Long: `crawlfleet partitions a seed list across concurrent agents that crawl
the web breadth-first, gate on robots.txt, deduplicate against a shared
store, and publish page results to a durable queue. A separate consume
command drains the queue into the page archive.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (optional; env vars apply either way)")
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newConsumeCmd())
	return cmd
}

// Execute runs the CLI. It installs signal handling so SIGINT/SIGTERM
// cancel the command context and let components drain.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ignoreCanceled filters out the error a long-running command returns
// when a shutdown signal cancels its context: that is a clean exit,
// not a failure.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
