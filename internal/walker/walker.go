// Package walker enumerates a remote file tree.
//
// The walk uses an explicit queue of pending folders instead of native
// recursion, so a pathological tree cannot blow the stack and memory
// stays bounded by the frontier. All pages of a folder's listing are
// drained before the next folder is taken, and a single folder's
// listing failure skips that branch only - siblings keep going.
package walker

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/treemirror/treemirror/internal/drive"
)

// Discovered is one remote entry found during a walk, tagged with its
// traversal context.
type Discovered struct {
	Item drive.Item

	// ParentRemoteID is the provider id of the folder this entry was
	// listed under.
	ParentRemoteID string

	// Depth is the entry's distance below the start folder: direct
	// children are depth 0.
	Depth int
}

// BranchError records a folder whose listing failed. The subtree under
// that folder was not explored.
type BranchError struct {
	FolderID string
	Depth    int
	Err      error
}

func (e BranchError) Error() string {
	return fmt.Sprintf("listing folder %s (depth %d): %v", e.FolderID, e.Depth, e.Err)
}

// Result is the outcome of one walk.
type Result struct {
	Nodes  []Discovered
	Errors []BranchError
}

// Walker traverses a remote tree breadth-first up to a maximum depth.
type Walker struct {
	client   drive.Client
	maxDepth int
	logger   *log.Logger
}

// pending is one frontier entry: a folder whose children still need to
// be listed. childDepth is the depth its children will have.
type pending struct {
	folderID   string
	childDepth int
}

// New creates a walker. maxDepth bounds how deep the walk descends:
// children deeper than maxDepth are never listed (the folders at the
// boundary are still yielded, only their contents are pruned). If
// logger is nil, a default logger writing to stderr is used.
func New(client drive.Client, maxDepth int, logger *log.Logger) *Walker {
	if logger == nil {
		logger = log.New(os.Stderr, "[walk] ", log.LstdFlags)
	}
	return &Walker{
		client:   client,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// Walk enumerates everything under the folder rootID. The start folder
// itself is not part of the result; callers fetch it separately since
// they already hold its id.
//
// Returns ctx.Err() when the context expires mid-walk; the partial
// result gathered so far is still returned.
func (w *Walker) Walk(ctx context.Context, rootID string) (*Result, error) {
	result := &Result{}
	queue := []pending{{folderID: rootID, childDepth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry := queue[0]
		queue = queue[1:]

		items, err := w.listAllPages(ctx, entry.folderID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			w.logger.Printf("WARNING: skipping branch %s: %v", entry.folderID, err)
			result.Errors = append(result.Errors, BranchError{
				FolderID: entry.folderID,
				Depth:    entry.childDepth,
				Err:      err,
			})
			continue
		}

		for _, item := range items {
			result.Nodes = append(result.Nodes, Discovered{
				Item:           item,
				ParentRemoteID: entry.folderID,
				Depth:          entry.childDepth,
			})

			if item.IsFolder() && entry.childDepth+1 <= w.maxDepth {
				queue = append(queue, pending{
					folderID:   item.ID,
					childDepth: entry.childDepth + 1,
				})
			}
		}
	}

	w.logger.Printf("Walk of %s complete: %d nodes, %d skipped branches",
		rootID, len(result.Nodes), len(result.Errors))

	return result, nil
}

// listAllPages drains every page of a folder's child listing, passing
// the continuation token forward until none remains.
func (w *Walker) listAllPages(ctx context.Context, folderID string) ([]drive.Item, error) {
	var items []drive.Item
	pageToken := ""

	for {
		page, err := w.client.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Items...)

		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}
