// Package result holds the row-cursor result sets returned by every read
// operation, plus the OverLimit short-circuit signal.
package result

import "github.com/Qksidmx/skgraph/edgerec"

// Edge is a single edge row returned by GetEdgeAttributes.
type Edge struct {
	edgerec.MemoryEdge
}

// EdgeSet accumulates MemoryEdge rows across MemTable and SubEdgePartition
// hits, short-circuiting once a caller-supplied limit is reached.
type EdgeSet struct {
	Rows      []edgerec.MemoryEdge
	OverLimit bool
	limit     int
}

// NewEdgeSet returns an EdgeSet capped at limit rows; limit <= 0 means
// unlimited.
func NewEdgeSet(limit int) *EdgeSet {
	return &EdgeSet{limit: limit}
}

// Add appends row unless the set is already at its limit. It returns false
// once the caller should stop visiting further partitions: a read that
// accumulates limit rows sets OverLimit and stops.
func (s *EdgeSet) Add(row edgerec.MemoryEdge) bool {
	if s.limit > 0 && len(s.Rows) >= s.limit {
		s.OverLimit = true
		return false
	}
	s.Rows = append(s.Rows, row)
	if s.limit > 0 && len(s.Rows) >= s.limit {
		s.OverLimit = true
		return false
	}

	return true
}

// VertexSet accumulates distinct neighbor vertex ids reached by a
// GetInVertices/GetOutVertices traversal, applying the same limit/OverLimit
// short-circuit as EdgeSet.
type VertexSet struct {
	IDs       []uint32
	OverLimit bool
	limit     int
	seen      map[uint32]struct{}
}

// NewVertexSet returns a VertexSet capped at limit distinct ids; limit <= 0
// means unlimited.
func NewVertexSet(limit int) *VertexSet {
	return &VertexSet{limit: limit, seen: make(map[uint32]struct{})}
}

// Add records vid if not already present. Returns false once the caller
// should stop visiting further partitions.
func (s *VertexSet) Add(vid uint32) bool {
	if _, dup := s.seen[vid]; dup {
		return true
	}
	if s.limit > 0 && len(s.IDs) >= s.limit {
		s.OverLimit = true
		return false
	}
	s.seen[vid] = struct{}{}
	s.IDs = append(s.IDs, vid)
	if s.limit > 0 && len(s.IDs) >= s.limit {
		s.OverLimit = true
		return false
	}

	return true
}
