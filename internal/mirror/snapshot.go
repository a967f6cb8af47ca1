package mirror

// Snapshot is an in-memory view of the mirror taken before a
// reconciliation pass. All discovery completes against this one view
// before any write is issued, so the diff is never computed against
// rows mutated mid-pass.
type Snapshot struct {
	// Nodes holds every live row in the snapshot scope.
	Nodes []*Node

	byRemoteID map[string]*Node
	byParentID map[string][]*Node
}

// NewSnapshot builds the lookup maps over the given rows.
func NewSnapshot(nodes []*Node) *Snapshot {
	s := &Snapshot{
		Nodes:      nodes,
		byRemoteID: make(map[string]*Node, len(nodes)),
		byParentID: make(map[string][]*Node),
	}

	for _, n := range nodes {
		s.byRemoteID[n.RemoteID] = n
		if n.ParentID != nil {
			s.byParentID[*n.ParentID] = append(s.byParentID[*n.ParentID], n)
		}
	}

	return s
}

// ByRemoteID looks up a node by its provider identifier.
func (s *Snapshot) ByRemoteID(remoteID string) (*Node, bool) {
	n, ok := s.byRemoteID[remoteID]
	return n, ok
}

// ChildrenOf returns the nodes whose parent_id is the given
// mirror-local id.
func (s *Snapshot) ChildrenOf(id string) []*Node {
	return s.byParentID[id]
}

// Len returns the number of rows in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Nodes)
}
