// treemirror mirrors a remote Drive folder hierarchy into a local
// SQLite table and keeps path, hierarchy and media-reference fields
// consistent as the remote tree changes.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/treemirror/treemirror/internal/config"
	"github.com/treemirror/treemirror/internal/drive"
	"github.com/treemirror/treemirror/internal/logging"
	"github.com/treemirror/treemirror/internal/mirror"
	"github.com/treemirror/treemirror/internal/reconcile"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "treemirror",
	Short: "Mirror a remote file tree into a local SQLite table",
	Long: `treemirror keeps a relational mirror of a remote folder hierarchy.

Each reconciliation pass walks the remote tree, derives path and
hierarchy fields for every node, diffs them against the mirror and
applies the changes in batches. Re-running a pass against an unchanged
tree is a no-op.

Configuration is read from treemirror.yaml (or --config) with
TREEMIRROR_* environment overrides.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default treemirror.yaml)")
}

// newLogger builds a component logger honoring the configured log file.
func newLogger(component string) *log.Logger {
	return logging.New(component, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// openStore opens the mirror database and ensures the schema exists.
func openStore(cmd *cobra.Command) (*mirror.Store, error) {
	store, err := mirror.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	if err := store.InitSchema(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// newEngine wires a reconciliation engine for remote-touching
// commands. Missing credentials abort here, before any I/O.
func newEngine(store *mirror.Store) (*reconcile.Engine, error) {
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	client := drive.NewHTTPClient(cfg.API.BaseURL, cfg.API.Token)
	return reconcile.New(client, store, cfg.Sync.BatchSize, newLogger("reconcile")), nil
}
