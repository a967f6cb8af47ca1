package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treemirror/treemirror/internal/drive"
	"github.com/treemirror/treemirror/internal/mirror"
	"github.com/treemirror/treemirror/internal/walker"
)

// DefaultMaxDepth bounds traversal when the caller doesn't specify one.
const DefaultMaxDepth = 10

// Options configures one reconciliation pass.
type Options struct {
	// MaxDepth bounds the walk; <= 0 selects DefaultMaxDepth.
	MaxDepth int

	// DryRun classifies without writing. The result carries the full
	// proposed insert/update records so the output is diffable against
	// a real run.
	DryRun bool

	// Progress receives structured events during writes. Optional.
	Progress func(Event)
}

// Result is the outcome of one reconciliation pass for one root.
type Result struct {
	RootID     string
	Discovered int
	Inserted   int
	Updated    int
	Skipped    int
	Fallbacks  int
	Errors     []string

	// Partial is set when the deadline expired before all writes were
	// submitted.
	Partial bool

	// ToInsert and ToUpdate hold the proposed records. Populated only
	// in dry-run mode.
	ToInsert []*mirror.Node
	ToUpdate []*mirror.Node
}

// Engine runs discover -> derive -> diff -> write passes against one
// mirror store. Safe for concurrent use across DISJOINT roots; the
// caller must serialize passes over the same root.
type Engine struct {
	client    drive.Client
	store     *mirror.Store
	batchSize int
	logger    *log.Logger
}

// New creates an engine. batchSize <= 0 selects DefaultBatchSize.
// If logger is nil, a default logger writing to stderr is used.
func New(client drive.Client, store *mirror.Store, batchSize int, logger *log.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Engine{
		client:    client,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Reconcile runs one full pass for the hierarchy rooted at rootID:
// walk the remote tree, derive path context, diff against the mirror
// snapshot, and apply the changes in batches.
//
// All discovery completes before any write is issued, so the snapshot
// used for diffing is never stale relative to this pass's own writes.
// Branch and chunk failures are accumulated into Result.Errors and
// never abort the pass; only a failure to reach the root itself or to
// snapshot the mirror is returned as an error.
func (e *Engine) Reconcile(ctx context.Context, rootID string, opts Options) (*Result, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	rootItem, err := e.client.GetNode(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root %s: %w", rootID, err)
	}
	if !rootItem.IsFolder() {
		return nil, fmt.Errorf("root %s (%s) is not a folder", rootID, rootItem.Name)
	}

	snap, err := e.store.Snapshot(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot mirror for root %s: %w", rootID, err)
	}

	e.logger.Printf("Reconciling root %s (%s): %d mirrored nodes, maxDepth=%d",
		rootID, rootItem.Name, snap.Len(), maxDepth)

	w := walker.New(e.client, maxDepth, e.logger)
	walkResult, walkErr := w.Walk(ctx, rootID)

	result := &Result{
		RootID:     rootID,
		Discovered: len(walkResult.Nodes) + 1, // plus the root itself
	}
	for _, be := range walkResult.Errors {
		result.Errors = append(result.Errors, be.Error())
	}
	if walkErr != nil {
		// Deadline mid-walk: diff what we have, but flag the pass.
		result.Partial = true
		result.Errors = append(result.Errors, walkErr.Error())
	}

	derived := DeriveAll(*rootItem, walkResult.Nodes, e.logger)
	changes := Diff(derived, snap, time.Now().UTC())
	result.Fallbacks = changes.Fallbacks

	if opts.DryRun {
		result.Inserted = len(changes.ToInsert)
		result.Updated = len(changes.ToUpdate)
		result.Skipped = changes.Unchanged
		result.ToInsert = changes.ToInsert
		result.ToUpdate = changes.ToUpdate
		e.logger.Printf("DRY RUN root %s: %d inserts, %d updates, %d unchanged",
			rootID, result.Inserted, result.Updated, result.Skipped)
		return result, nil
	}

	writer := NewWriter(e.store, e.batchSize, e.logger)
	writer.SetProgress(opts.Progress)
	stats := writer.Apply(ctx, changes)

	result.Inserted = stats.Inserted
	result.Updated = stats.Updated
	result.Skipped = stats.Skipped
	result.Errors = append(result.Errors, stats.Errors...)
	result.Partial = result.Partial || stats.Partial

	return result, nil
}

// ReconcileAll reconciles several roots, up to concurrency at a time.
// Distinct roots touch disjoint rows, so parallel passes are safe; the
// same root must never appear twice in rootIDs.
//
// A root whose pass fails outright still yields a Result carrying the
// error, so one broken hierarchy does not hide the others' outcomes.
func (e *Engine) ReconcileAll(ctx context.Context, rootIDs []string, concurrency int, opts Options) (map[string]*Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	results := make(map[string]*Result, len(rootIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, rootID := range rootIDs {
		g.Go(func() error {
			res, err := e.Reconcile(gctx, rootID, opts)
			if err != nil {
				res = &Result{RootID: rootID, Errors: []string{err.Error()}}
			}

			mu.Lock()
			results[rootID] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

// Propagate sets the media node's id as the main reference on the
// folder and its whole subtree. Both ids are mirror-local.
func (e *Engine) Propagate(ctx context.Context, folderID, mediaID string, opts Options) (*PropagateResult, error) {
	p := NewPropagator(e.store, e.batchSize, e.logger)
	p.SetProgress(opts.Progress)
	return p.Propagate(ctx, folderID, mediaID, opts.DryRun)
}

// ResolveMapping resolves a folder-name/file-name pair to mirror-local
// ids for propagation. Names match exactly; fuzzy matching is
// deliberately not offered here because substring heuristics were
// observed to accept wrong pairs silently.
func (e *Engine) ResolveMapping(ctx context.Context, folderName, fileName string) (folderID, mediaID string, err error) {
	folder, err := e.store.FindFolderByName(ctx, folderName)
	if err != nil {
		return "", "", fmt.Errorf("no folder named %q in the mirror: %w", folderName, err)
	}

	media, err := e.store.FindFileByName(ctx, fileName, "")
	if err != nil {
		return "", "", fmt.Errorf("no file named %q in the mirror: %w", fileName, err)
	}

	return folder.ID, media.ID, nil
}
