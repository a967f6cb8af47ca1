package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mirror contents per root",
	Long: `Display per-hierarchy counts from the mirror database.

Shows, for each root: total live nodes, folder/file split, how many
nodes carry a main reference, and how many rows are soft-deleted.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		stats, err := store.StatsByRoot(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(stats) == 0 {
			fmt.Printf("Mirror is empty. Run 'treemirror reconcile' first.\n")
			return
		}

		// Reverse map for friendly names.
		names := make(map[string]string, len(cfg.Roots))
		for name, id := range cfg.Roots {
			names[id] = name
		}

		total := 0
		for _, st := range stats {
			label := st.RootID
			if name, ok := names[st.RootID]; ok {
				label = fmt.Sprintf("%s (%s)", name, st.RootID)
			}
			fmt.Printf("\n%s\n", label)
			fmt.Printf("  Nodes:          %d (%d folders, %d files)\n", st.Nodes, st.Folders, st.Files)
			fmt.Printf("  Main reference: %d assigned, %d missing\n", st.WithMainRef, st.Nodes-st.WithMainRef)
			if st.Fallbacks > 0 {
				fmt.Printf("  Fallback placements: %d (audit recommended)\n", st.Fallbacks)
			}
			if st.SoftDeleted > 0 {
				fmt.Printf("  Soft-deleted:   %d\n", st.SoftDeleted)
			}
			total += st.Nodes
		}
		fmt.Printf("\nTotal: %d nodes across %d roots\n", total, len(stats))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
