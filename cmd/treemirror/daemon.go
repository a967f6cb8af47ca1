package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treemirror/treemirror/internal/reconcile"
)

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Reconcile all registered roots on an interval (foreground)",
	Long: `Run reconciliation continuously in foreground mode.

Every interval, each root registered under roots: in the config is
reconciled against the remote tree (disjoint roots in parallel, one
pass per root at a time). The remote provider offers no change feed
to this engine, so the daemon polls.

Press Ctrl+C to stop; an in-flight pass finishes its current batch
before shutdown.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(cfg.Roots) == 0 {
			fmt.Fprintf(os.Stderr, "Error: daemon requires roots configured under roots:\n")
			os.Exit(1)
		}

		store, err := openStore(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		engine, err := newEngine(store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		interval := daemonInterval
		if interval <= 0 {
			interval = cfg.Sync.Interval
		}

		logger := newLogger("daemon")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting sync daemon: %d roots, every %v\n", len(cfg.Roots), interval)
		fmt.Printf("Press Ctrl+C to stop\n\n")

		opts := reconcile.Options{MaxDepth: cfg.Sync.MaxDepth}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// First pass immediately, then on every tick.
		for {
			results, err := engine.ReconcileAll(ctx, cfg.RootIDs(), cfg.Sync.Concurrency, opts)
			if err != nil {
				logger.Printf("Pass aborted: %v", err)
			}
			for rootID, res := range results {
				logger.Printf("root %s: inserted=%d updated=%d unchanged=%d errors=%d",
					rootID, res.Inserted, res.Updated, res.Skipped, len(res.Errors))
			}

			select {
			case <-ctx.Done():
				fmt.Printf("Shutting down\n")
				return
			case <-ticker.C:
			}
		}
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "time between passes (default from config)")
	rootCmd.AddCommand(daemonCmd)
}
