// Package reconcile implements the hierarchical reconciliation engine:
// deriving path context for discovered remote nodes, diffing them
// against the mirror, applying the resulting writes in isolated
// batches, and propagating main-reference associations down subtrees.
package reconcile

import (
	"log"
	"sort"
	"strings"

	"github.com/treemirror/treemirror/internal/drive"
	"github.com/treemirror/treemirror/internal/mirror"
	"github.com/treemirror/treemirror/internal/walker"
)

// ResolutionStrategy records how a node's place in the hierarchy was
// determined.
type ResolutionStrategy string

const (
	// ByParentChain means the node's parent was found among discovered
	// or mirrored nodes and the path was derived from it. This is the
	// primary, invariant-preserving path.
	ByParentChain ResolutionStrategy = mirror.ResolutionParentChain

	// ByNamePatternFallback means the node's parent could not be
	// located and the node was attached under the root by a name
	// heuristic. Degraded confidence: the tag is stored on the row
	// itself so these placements can be audited record by record.
	ByNamePatternFallback ResolutionStrategy = mirror.ResolutionNameFallback
)

// Derived is a discovered node annotated with its computed path
// context, ready for diffing against the mirror.
type Derived struct {
	Item           drive.Item
	ParentRemoteID string
	Path           string
	Segments       []string
	Depth          int
	RootID         string
	IsRoot         bool
	Strategy       ResolutionStrategy
}

// parentContext is the slice of a Derived node that children inherit.
type parentContext struct {
	path   string
	depth  int
	rootID string
}

// DeriveAll computes path, segments, depth and root id for every
// discovered node, from scratch - previously stored values are never
// trusted, because nodes may have been renamed or reparented remotely
// since the last pass.
//
// root is the registered hierarchy top (already fetched by the
// caller); discovered is the walker's output for that root. Nodes
// whose parent cannot be resolved are attached directly under the root
// with the ByNamePatternFallback strategy.
//
// The returned slice is ordered parents-before-children (the root
// first, then ascending depth, ties broken by path) so id assignment
// downstream can rely on it.
func DeriveAll(root drive.Item, discovered []walker.Discovered, logger *log.Logger) []Derived {
	rootDerived := Derived{
		Item:     root,
		Path:     "/" + root.Name,
		Segments: mirror.SegmentsFromPath("/" + root.Name),
		Depth:    mirror.RootPathDepth,
		RootID:   root.ID,
		IsRoot:   true,
		Strategy: ByParentChain,
	}

	contexts := map[string]parentContext{
		root.ID: {path: rootDerived.Path, depth: rootDerived.Depth, rootID: root.ID},
	}

	// Walk output is breadth-first, so a node's parent folder has
	// always been seen before the node itself. Orphans (parent missing
	// because its branch failed to list) fall through to the fallback.
	results := []Derived{rootDerived}
	var fallbacks int

	for _, d := range discovered {
		parent, ok := contexts[d.ParentRemoteID]

		var derived Derived
		if ok {
			derived = Derived{
				Item:           d.Item,
				ParentRemoteID: d.ParentRemoteID,
				Path:           parent.path + "/" + d.Item.Name,
				Depth:          parent.depth + 1,
				RootID:         parent.rootID,
				Strategy:       ByParentChain,
			}
		} else {
			// Best-effort root attachment. The node keeps its name in
			// the path but hangs directly under the root; the strategy
			// tag tells downstream consumers not to treat this as a
			// confirmed placement.
			derived = Derived{
				Item:           d.Item,
				ParentRemoteID: root.ID,
				Path:           rootDerived.Path + "/" + d.Item.Name,
				Depth:          0,
				RootID:         root.ID,
				Strategy:       ByNamePatternFallback,
			}
			fallbacks++
		}

		derived.Segments = mirror.SegmentsFromPath(derived.Path)
		results = append(results, derived)

		if d.Item.IsFolder() {
			contexts[d.Item.ID] = parentContext{
				path:   derived.Path,
				depth:  derived.Depth,
				rootID: derived.RootID,
			}
		}
	}

	if fallbacks > 0 && logger != nil {
		logger.Printf("WARNING: %d nodes resolved by name-pattern fallback under root %s", fallbacks, root.ID)
	}

	sortDerived(results)
	return results
}

// sortDerived orders nodes parents-before-children: ascending depth,
// then lexicographically by path for stable, user-facing enumeration.
func sortDerived(nodes []Derived) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return strings.Compare(nodes[i].Path, nodes[j].Path) < 0
	})
}
