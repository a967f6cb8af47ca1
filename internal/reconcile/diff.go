package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/treemirror/treemirror/internal/mirror"
)

// Changes is the classification of one reconciliation pass: every
// derived node lands in exactly one of the three sets.
type Changes struct {
	ToInsert []*mirror.Node
	ToUpdate []*mirror.Node

	// Unchanged counts nodes already mirrored with identical relevant
	// fields. Re-running a pass against an unchanged remote tree puts
	// everything here - that is the idempotence the pipeline exists to
	// guarantee.
	Unchanged int

	// Fallbacks counts nodes placed by the name-pattern heuristic.
	Fallbacks int
}

// Diff compares derived nodes against the mirror snapshot and
// classifies each as insert, update or unchanged.
//
// New nodes get a fresh mirror-local id. Existing nodes keep theirs no
// matter how many attributes drifted: dependent tables hold foreign
// keys to that id, so it must survive renames and moves. The derived
// slice must be ordered parents-before-children (DeriveAll guarantees
// this) so a child's parent_id can always be resolved to a known
// mirror-local id.
func Diff(derived []Derived, snap *mirror.Snapshot, now time.Time) *Changes {
	changes := &Changes{}
	idByRemote := make(map[string]string, len(derived))

	for _, d := range derived {
		existing, exists := snap.ByRemoteID(d.Item.ID)

		var id string
		if exists {
			id = existing.ID
		} else {
			id = uuid.NewString()
		}
		idByRemote[d.Item.ID] = id

		var parentID *string
		if !d.IsRoot {
			if pid, ok := idByRemote[d.ParentRemoteID]; ok {
				parentID = &pid
			}
		}

		candidate := &mirror.Node{
			ID:            id,
			RemoteID:      d.Item.ID,
			Name:          d.Item.Name,
			MimeType:      d.Item.MimeType,
			Size:          d.Item.Size,
			ModifiedTime:  parseTime(d.Item.ModifiedTime),
			WebLink:       d.Item.WebViewLink,
			ThumbnailLink: d.Item.ThumbnailLink,
			ParentID:      parentID,
			RootID:        d.RootID,
			Path:          d.Path,
			PathSegments:  d.Segments,
			PathDepth:     d.Depth,
			IsRoot:        d.IsRoot,
			Resolution:    string(d.Strategy),
			UpdatedAt:     now,
		}

		if d.Strategy == ByNamePatternFallback {
			changes.Fallbacks++
		}

		if !exists {
			candidate.CreatedAt = now
			changes.ToInsert = append(changes.ToInsert, candidate)
			continue
		}

		// The differ never touches the main reference; that is the
		// propagator's field.
		candidate.MainReferenceID = existing.MainReferenceID
		candidate.CreatedAt = existing.CreatedAt

		if nodeChanged(existing, candidate) {
			changes.ToUpdate = append(changes.ToUpdate, candidate)
		} else {
			changes.Unchanged++
		}
	}

	return changes
}

// nodeChanged reports whether any reconciliation-relevant field
// drifted between the mirrored row and the freshly derived candidate.
func nodeChanged(existing, candidate *mirror.Node) bool {
	switch {
	case existing.Path != candidate.Path:
		return true
	case !ptrEqual(existing.ParentID, candidate.ParentID):
		return true
	case existing.RootID != candidate.RootID:
		return true
	case existing.Name != candidate.Name:
		return true
	case existing.MimeType != candidate.MimeType:
		return true
	case existing.Size != candidate.Size:
		return true
	case !timeEqual(existing.ModifiedTime, candidate.ModifiedTime):
		return true
	case existing.PathDepth != candidate.PathDepth:
		return true
	case existing.IsRoot != candidate.IsRoot:
		return true
	case existing.Resolution != candidate.Resolution:
		// A row that regains (or loses) a confirmed placement must be
		// rewritten so the audit tag stays truthful.
		return true
	}
	return false
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC().Truncate(time.Second)
	return &t
}
