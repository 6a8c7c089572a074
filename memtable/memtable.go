// Package memtable implements the write buffer: the Vec and Hash backends
// sharing one Table contract. A MemTable belongs to exactly one
// SubEdgePartition; callers are responsible for excluding concurrent
// writers via the enclosing ShardTree's write lock.
package memtable

import (
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
)

// Kind selects the write-buffer storage variant.
type Kind int

const (
	KindVec Kind = iota
	KindHash
)

// keyOverhead approximates the per-entry bookkeeping cost of each backend,
// used only by the estimated_bytes heuristic: an estimate, not a measurement.
const (
	vecKeyOverhead  = 8  // slice header amortized share
	hashKeyOverhead = 24 // map bucket + Key struct
)

// PropertyValue is one named, caller-supplied column value for an
// AddEdge/SetEdgeAttributes call, prior to being reordered into the
// partition schema's byte layout.
type PropertyValue struct {
	Name  string
	Value []byte
}

// EdgeSpec is the MemTable-level request shape for AddEdge/SetEdgeAttributes.
type EdgeSpec struct {
	Src    uint32
	Dst    uint32
	Weight float32
	Tag    uint8
	Props  []PropertyValue
}

// Table is the write-buffer contract implemented by both vecTable and
// hashTable.
type Table interface {
	AddEdge(req EdgeSpec) error
	DeleteEdge(src, dst uint32, tag uint8) error
	DeleteVertex(vid uint32) (deleted int)
	SetEdgeAttributes(req EdgeSpec) error
	GetEdgeAttributes(src, dst uint32, tag uint8) (edgerec.MemoryEdge, error)
	GetOutEdges(src uint32) []edgerec.MemoryEdge
	GetInEdges(dst uint32) []edgerec.MemoryEdge
	GetOutDegree(src uint32) int
	GetInDegree(dst uint32) int
	ExtractAll() ([]edgerec.MemoryEdge, interval.Interval)
	IsFull() bool
	EstimatedBytes() int64
	NumEdges() int
}

// reorderProperties applies the property-reorder rule: each supplied
// value is written at the byte offset dictated by the partition
// schema's ColumnDescriptor (not the request's own ordering), zeroing any
// prior fixed-bytes content before overwrite. A property not declared in
// the schema is silently dropped with a debug log. A value wider than the
// schema's value_size is truncated at the prefix.
func reorderProperties(sc *schema.MetaAttributes, fixed []byte, bits *edgerec.PropertyBits, props []PropertyValue, log *zap.Logger) []byte {
	if fixed == nil {
		fixed = make([]byte, sc.FixedBytesLen())
	}
	for _, pv := range props {
		col, ok := sc.Column(pv.Name)
		if !ok {
			log.Debug("memtable: ignoring undeclared property", zap.String("name", pv.Name))
			continue
		}
		width := col.RowWidth()
		if col.OffsetWithinRow+width > len(fixed) {
			grown := make([]byte, col.OffsetWithinRow+width)
			copy(grown, fixed)
			fixed = grown
		}
		for i := 0; i < width; i++ {
			fixed[col.OffsetWithinRow+i] = 0
		}
		n := len(pv.Value)
		if n > width {
			n = width
		}
		copy(fixed[col.OffsetWithinRow:col.OffsetWithinRow+n], pv.Value[:n])
		if err := bits.Set(col.ID); err != nil {
			log.Debug("memtable: column id out of range", zap.String("name", pv.Name), zap.Uint8("id", col.ID))
		}
	}

	return fixed
}

// New constructs a Table of the requested kind.
func New(kind Kind, sc *schema.MetaAttributes, memBufferMB int, log *zap.Logger) Table {
	if log == nil {
		log = zap.NewNop()
	}
	budget := int64(memBufferMB) * 1024 * 1024
	switch kind {
	case KindHash:
		return &hashTable{schema: sc, budget: budget, log: log, rows: make(map[edgerec.Key]*edgerec.MemoryEdge)}
	default:
		return &vecTable{schema: sc, budget: budget, log: log}
	}
}

// estimatedRowBytes applies the sizing heuristic:
// num_edges * (key_overhead + weight + schema.fixed_bytes_len).
func estimatedRowBytes(n int, keyOverhead int, fixedLen int) int64 {
	const weightSize = 4
	return int64(n) * int64(keyOverhead+weightSize+fixedLen)
}

// sentinelVertex is the reserved vid 2^32-1. No code in this package
// refers to it: the hash backend is a Go map that marks deletes with the
// row's Tombstoned flag rather than a sentinel key.
const sentinelVertex = ^uint32(0) // 2^32 - 1
