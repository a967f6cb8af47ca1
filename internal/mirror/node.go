// Package mirror provides the relational mirror of a remote file tree.
//
// The mirror is a single SQLite table (nodes) that stores one row per
// remote file-system entry. Rows are keyed two ways:
//   - id: mirror-local identifier, owned by the mirror, stable for the
//     lifetime of the row. Dependent tables hold foreign keys to it,
//     so it never changes once assigned.
//   - remote_id: the provider's identifier, globally unique per remote
//     entry. This is the natural key for idempotent upserts.
//
// Path fields (path, path_segments, path_depth, root_id) are derived
// from the remote tree on every reconciliation pass and overwritten,
// never trusted from a previous pass.
package mirror

import (
	"fmt"
	"strings"
	"time"
)

// FolderMimeType marks a node as a folder rather than a typed file.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootPathDepth is the sentinel depth stored for registered hierarchy
// roots. Ordinary nodes directly under a root have depth 0, so the
// sentinel must sit below that.
const RootPathDepth = -1

// Resolution values recorded per row: how the node's hierarchy
// placement was determined on the last pass.
const (
	ResolutionParentChain  = "parent_chain"
	ResolutionNameFallback = "name_pattern_fallback"
)

// Node represents one remote file-system entry mirrored as a row.
type Node struct {
	// ===== Identity =====
	ID       string `json:"id"`        // mirror-local, never reused
	RemoteID string `json:"remote_id"` // provider id, natural key

	// ===== Descriptive attributes (overwritten every pass) =====
	Name          string     `json:"name"`
	MimeType      string     `json:"mime_type"`
	Size          int64      `json:"size,omitempty"`
	ModifiedTime  *time.Time `json:"modified_time,omitempty"`
	WebLink       string     `json:"web_link,omitempty"`
	ThumbnailLink string     `json:"thumbnail_link,omitempty"`

	// ===== Hierarchy =====
	ParentID     *string  `json:"parent_id,omitempty"` // mirror-local id of parent, nil for roots
	RootID       string   `json:"root_id"`             // remote id of the hierarchy top
	Path         string   `json:"path"`
	PathSegments []string `json:"path_segments"`
	PathDepth    int      `json:"path_depth"`
	IsRoot       bool     `json:"is_root"`
	Resolution   string   `json:"resolution"` // ResolutionNameFallback marks a heuristic placement needing audit

	// ===== Cross references =====
	MainReferenceID *string `json:"main_reference_id,omitempty"` // mirror-local id of the representative media node

	// ===== Lifecycle =====
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.MimeType == FolderMimeType
}

// Validate checks the invariants a row must satisfy before it is written.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.RemoteID == "" {
		return fmt.Errorf("remote_id is required")
	}
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	if n.Path == "" {
		return fmt.Errorf("path is required")
	}
	if n.RootID == "" {
		return fmt.Errorf("root_id is required")
	}
	if n.IsRoot {
		if n.ParentID != nil {
			return fmt.Errorf("root node %s must not have a parent_id", n.RemoteID)
		}
		if n.RootID != n.RemoteID {
			return fmt.Errorf("root node %s must own its root_id (got %s)", n.RemoteID, n.RootID)
		}
		if n.PathDepth != RootPathDepth {
			return fmt.Errorf("root node %s must have sentinel depth %d (got %d)", n.RemoteID, RootPathDepth, n.PathDepth)
		}
	} else if n.PathDepth < 0 {
		return fmt.Errorf("non-root node %s has negative depth %d", n.RemoteID, n.PathDepth)
	}
	return nil
}

// SegmentsFromPath splits a /-delimited path into its segments.
// A root path like "/root" yields a single segment.
func SegmentsFromPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}

// PathContains reports whether candidate falls inside the subtree rooted
// at prefix, by path-prefix containment. A path contains itself.
func PathContains(prefix, candidate string) bool {
	if candidate == prefix {
		return true
	}
	return strings.HasPrefix(candidate, prefix+"/")
}
