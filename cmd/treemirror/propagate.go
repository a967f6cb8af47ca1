package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treemirror/treemirror/internal/reconcile"
)

var (
	propagateFolderID string
	propagateMediaID  string
	propagateMapping  string
	propagateDryRun   bool
)

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Assign a media file as the main reference for a folder subtree",
	Long: `Set a media node's id as the main reference on a folder and on
every mirrored node under it (by path-prefix containment).

The pair can be given as mirror-local ids (--folder-id/--media-id) or
as a name mapping the way the original mapping scripts took it:

  treemirror propagate --mapping "'Topic Folder': 'recording.mp4'"

Names must match mirrored rows exactly; when several folders share a
name the shallowest one wins.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		// Propagation only touches the mirror; no remote client needed.
		engine := reconcile.New(nil, store, cfg.Sync.BatchSize, newLogger("propagate"))

		folderID, mediaID := propagateFolderID, propagateMediaID
		if propagateMapping != "" {
			folderName, fileName, err := reconcile.ParseMapping(propagateMapping)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			folderID, mediaID, err = engine.ResolveMapping(cmd.Context(), folderName, fileName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if folderID == "" || mediaID == "" {
			fmt.Fprintf(os.Stderr, "Error: provide --mapping or both --folder-id and --media-id\n")
			os.Exit(1)
		}

		res, err := engine.Propagate(cmd.Context(), folderID, mediaID, reconcile.Options{DryRun: propagateDryRun})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nFolder: %s (%s)\n", res.Anchor.Name, res.Anchor.ID)
		fmt.Printf("Media:  %s (%s)\n", res.Media.Name, res.Media.ID)
		if propagateDryRun {
			fmt.Printf("DRY RUN: would update %d nodes:\n", len(res.Targets))
			for _, path := range res.Targets {
				fmt.Printf("  %s\n", path)
			}
			return
		}

		fmt.Printf("Updated: %d nodes\n", res.Updated)
		if res.Partial {
			fmt.Printf("Status: PARTIAL (deadline expired)\n")
		}
		for _, e := range res.Errors {
			fmt.Printf("Error: %s\n", e)
		}
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	propagateCmd.Flags().StringVar(&propagateFolderID, "folder-id", "", "mirror-local id of the anchor folder")
	propagateCmd.Flags().StringVar(&propagateMediaID, "media-id", "", "mirror-local id of the media node")
	propagateCmd.Flags().StringVar(&propagateMapping, "mapping", "", `name mapping: 'folder name': 'file name.mp4'`)
	propagateCmd.Flags().BoolVar(&propagateDryRun, "dry-run", false, "list affected paths without writing")
	rootCmd.AddCommand(propagateCmd)
}
