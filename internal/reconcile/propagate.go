package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/treemirror/treemirror/internal/mirror"
)

// PropagateResult is the outcome of one main-reference propagation.
type PropagateResult struct {
	// Anchor and Media describe the resolved pair.
	Anchor *mirror.Node
	Media  *mirror.Node

	Updated int
	Errors  []string
	Partial bool

	// Targets lists the paths that were (or in dry-run mode, would be)
	// assigned the reference.
	Targets []string
}

// refStore is the slice of the mirror store propagation needs.
type refStore interface {
	GetByID(ctx context.Context, id string) (*mirror.Node, error)
	DescendantsByPathPrefix(ctx context.Context, prefix string) ([]*mirror.Node, error)
	SetMainReference(ctx context.Context, ids []string, mediaID string) (int, error)
}

// Propagator assigns a media node's mirror-local id as the main
// reference on a folder and everything under it.
//
// Assignment is monotonic: this component only sets or overwrites the
// reference, never clears it. A later propagation from a more specific
// folder deliberately wins over an earlier, broader one.
type Propagator struct {
	store     refStore
	batchSize int
	logger    *log.Logger
	progress  func(Event)
}

// NewPropagator creates a propagator. batchSize <= 0 selects
// DefaultBatchSize. If logger is nil, a default logger writing to
// stderr is used.
func NewPropagator(store *mirror.Store, batchSize int, logger *log.Logger) *Propagator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[propagate] ", log.LstdFlags)
	}
	return &Propagator{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SetProgress installs a progress callback. Pass nil to disable.
func (p *Propagator) SetProgress(fn func(Event)) {
	p.progress = fn
}

// Propagate sets mediaID as the main reference on the folder with the
// given mirror-local id and on every live row whose path falls under
// the folder's path (path-prefix containment, not just direct
// children).
//
// Runs in two phases: the anchor folder is updated directly by id,
// then descendants are fetched by path-prefix query and updated in
// chunks. A chunk failure is reported but does not block the
// remaining chunks.
//
// In dry-run mode nothing is written; the result lists the targets
// that a live run would touch.
func (p *Propagator) Propagate(ctx context.Context, folderID, mediaID string, dryRun bool) (*PropagateResult, error) {
	folder, err := p.store.GetByID(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folder %s: %w", folderID, err)
	}
	if !folder.IsFolder() {
		return nil, fmt.Errorf("node %s (%s) is not a folder", folderID, folder.Name)
	}

	media, err := p.store.GetByID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load media node %s: %w", mediaID, err)
	}

	result := &PropagateResult{Anchor: folder, Media: media}

	descendants, err := p.store.DescendantsByPathPrefix(ctx, folder.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtree of %s: %w", folder.Path, err)
	}

	// Phase 1: the anchor itself, directly by id. The prefix query
	// returns it too, so drop it from the descendant set.
	targets := make([]*mirror.Node, 0, len(descendants))
	for _, n := range descendants {
		if n.ID == folder.ID {
			continue
		}
		targets = append(targets, n)
	}

	result.Targets = append(result.Targets, folder.Path)
	for _, n := range targets {
		result.Targets = append(result.Targets, n.Path)
	}

	if dryRun {
		p.logger.Printf("DRY RUN: would set main reference %s on %d nodes under %s",
			media.ID, len(result.Targets), folder.Path)
		return result, nil
	}

	updated, err := p.store.SetMainReference(ctx, []string{folder.ID}, media.ID)
	if err != nil {
		// Without the anchor the subtree update would leave the
		// hierarchy inconsistent, so this one is fatal.
		return nil, fmt.Errorf("failed to update anchor folder %s: %w", folder.ID, err)
	}
	result.Updated += updated

	// Phase 2: descendants, chunked.
	for i := 0; i < len(targets); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			result.Partial = true
			p.logger.Printf("Deadline expired during propagation: %d of %d nodes updated",
				result.Updated, len(result.Targets))
			break
		}

		end := i + p.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		chunk := targets[i:end]
		batchIndex := i/p.batchSize + 1

		ids := make([]string, len(chunk))
		for j, n := range chunk {
			ids[j] = n.ID
		}

		updated, err := p.store.SetMainReference(ctx, ids, media.ID)
		if err != nil {
			if ctx.Err() != nil {
				result.Partial = true
				p.logger.Printf("Deadline expired during propagation batch %d: %d of %d nodes updated",
					batchIndex, result.Updated, len(result.Targets))
				break
			}
			p.logger.Printf("WARNING: propagation batch %d failed (%d rows): %v", batchIndex, len(chunk), err)
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Updated += updated
		}

		if p.progress != nil {
			p.progress(Event{
				Stage:     "propagate",
				Batch:     batchIndex,
				BatchSize: len(chunk),
				Done:      result.Updated,
				Total:     len(result.Targets),
			})
		}
	}

	p.logger.Printf("Propagation complete: %s -> %d nodes under %s (errors=%d)",
		media.Name, result.Updated, folder.Path, len(result.Errors))

	return result, nil
}
