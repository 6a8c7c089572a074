// Package request holds the structured input accepted by the top-level
// Handle and threaded down through ShardTree/EdgePartition/SubEdgePartition.
package request

import "github.com/Qksidmx/skgraph/memtable"

// Direction selects which side of an edge a traversal request walks.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// EdgeRequest carries one operation: add, delete, set/get-attributes, or a
// neighborhood/degree read keyed by Src/Dst/Direction. Vertex-centric reads
// (GetInVertices, GetOutDegree, ...) reuse this same shape with Dst (or Src)
// as the queried vertex and the edge-specific fields left zero.
type EdgeRequest struct {
	Label     string
	Src       uint32
	Dst       uint32
	Tag       uint8
	Weight    float32
	Props     []memtable.PropertyValue
	Direction Direction
	// Limit caps the number of rows a read accumulates before signaling
	// OverLimit. Zero means unlimited.
	Limit int
	// CheckExist forces AddEdge to run a full containment walk first and
	// fall back to set-with-create instead of a blind MemTable append.
	CheckExist bool
	// CreateIfNotExist lets SetEdgeAttributes fall back to AddEdge when no
	// partition already holds the target row.
	CreateIfNotExist bool
}
