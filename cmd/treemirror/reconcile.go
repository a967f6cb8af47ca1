package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/treemirror/treemirror/internal/mirror"
	"github.com/treemirror/treemirror/internal/reconcile"
)

var (
	reconcileDryRun   bool
	reconcileAll      bool
	reconcileMaxDepth int
	reconcileTimeout  time.Duration
	reconcileVerbose  bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [root]",
	Short: "Reconcile one hierarchy (or all registered roots) with the mirror",
	Long: `Run one full reconciliation pass.

The pass walks the remote tree under the given root, derives path and
hierarchy fields for every discovered node, diffs them against the
mirror and applies inserts/updates in batches. Branch and batch
failures are reported at the end and never abort the run.

The root argument is either a name registered under roots: in the
config file or a raw remote folder id. With --all, every registered
root is reconciled (disjoint roots run in parallel).

With --dry-run the full proposed insert/update records are printed as
JSON and nothing is written, so the output serves as a pre-flight
diff.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !reconcileAll && len(args) != 1 {
			fmt.Fprintf(os.Stderr, "Error: provide a root name/id or use --all\n")
			os.Exit(1)
		}
		if reconcileAll && len(cfg.Roots) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --all requires roots configured under roots:\n")
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

		ctx := cmd.Context()
		if reconcileTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, reconcileTimeout)
			defer cancel()
		}

		maxDepth := reconcileMaxDepth
		if maxDepth <= 0 {
			maxDepth = cfg.Sync.MaxDepth
		}

		opts := reconcile.Options{
			MaxDepth: maxDepth,
			DryRun:   reconcileDryRun,
		}
		if reconcileVerbose {
			opts.Progress = func(ev reconcile.Event) {
				fmt.Printf("  %s batch %d: %d/%d rows\n", ev.Stage, ev.Batch, ev.Done, ev.Total)
			}
		}

		start := time.Now()
		exitCode := 0

		if reconcileAll {
			results, err := engine.ReconcileAll(ctx, cfg.RootIDs(), cfg.Sync.Concurrency, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				exitCode = 1
			}
			for _, rootID := range cfg.RootIDs() {
				if res, ok := results[rootID]; ok {
					printResult(res)
					if len(res.Errors) > 0 {
						exitCode = 1
					}
				}
			}
		} else {
			rootID, err := cfg.ResolveRoot(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			res, err := engine.Reconcile(ctx, rootID, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printResult(res)
			if len(res.Errors) > 0 {
				exitCode = 1
			}
		}

		fmt.Printf("Done in %v\n", time.Since(start).Round(time.Millisecond))
		os.Exit(exitCode)
	},
}

// printResult renders one pass summary; dry runs additionally dump the
// proposed records.
func printResult(res *reconcile.Result) {
	mode := ""
	if len(res.ToInsert) > 0 || len(res.ToUpdate) > 0 {
		mode = " (dry run)"
	}

	fmt.Printf("\nRoot %s%s\n", res.RootID, mode)
	fmt.Printf("  Discovered: %d\n", res.Discovered)
	fmt.Printf("  Inserted:   %d\n", res.Inserted)
	fmt.Printf("  Updated:    %d\n", res.Updated)
	fmt.Printf("  Unchanged:  %d\n", res.Skipped)
	if res.Fallbacks > 0 {
		fmt.Printf("  Fallback placements: %d (audit recommended)\n", res.Fallbacks)
	}
	if res.Partial {
		fmt.Printf("  Status: PARTIAL (deadline expired)\n")
	}
	for _, e := range res.Errors {
		fmt.Printf("  Error: %s\n", e)
	}

	printProposed("INSERT", res.ToInsert)
	printProposed("UPDATE", res.ToUpdate)
}

func printProposed(verb string, nodes []*mirror.Node) {
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			fmt.Printf("  %s %s (failed to render: %v)\n", verb, n.RemoteID, err)
			continue
		}
		fmt.Printf("  %s %s\n", verb, data)
	}
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "classify without writing; print proposed records")
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "reconcile every registered root")
	reconcileCmd.Flags().IntVar(&reconcileMaxDepth, "max-depth", 0, "maximum traversal depth (default from config)")
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 0, "overall deadline for the pass (0 = none)")
	reconcileCmd.Flags().BoolVarP(&reconcileVerbose, "verbose", "v", false, "print per-batch progress")
	rootCmd.AddCommand(reconcileCmd)
}
