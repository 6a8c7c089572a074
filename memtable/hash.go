package memtable

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// hashTable is the Hash backend: point lookups are O(1) via a
// (src,dst,tag) keyed map, but range/neighborhood lookups and
// DeleteVertex still scan every entry since the map is not indexed by
// src alone.
type hashTable struct {
	mu     sync.RWMutex
	schema *schema.MetaAttributes
	budget int64
	log    *zap.Logger
	rows   map[edgerec.Key]*edgerec.MemoryEdge
	iv     interval.Interval
}

func (t *hashTable) AddEdge(req EdgeSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bits := edgerec.NewPropertyBits()
	fixed := reorderProperties(t.schema, nil, &bits, req.Props, t.log)

	key := edgerec.Key{Src: req.Src, Dst: req.Dst, Tag: req.Tag}
	if len(t.rows) == 0 || req.Dst < t.iv.First {
		t.iv.First = req.Dst
	}
	t.rows[key] = &edgerec.MemoryEdge{
		Src: req.Src, Dst: req.Dst, Weight: req.Weight, Tag: req.Tag,
		PropertyBits: bits, FixedProps: fixed,
	}
	t.iv = t.iv.ExtendTo(req.Dst)

	return nil
}

func (t *hashTable) DeleteEdge(src, dst uint32, tag uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := edgerec.Key{Src: src, Dst: dst, Tag: tag}
	row, ok := t.rows[key]
	if !ok || row.Tombstoned {
		return skgerrors.ErrNotExist
	}
	row.Tombstoned = true

	return nil
}

func (t *hashTable) DeleteVertex(vid uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, row := range t.rows {
		if (row.Src == vid || row.Dst == vid) && !row.Tombstoned {
			row.Tombstoned = true
			n++
		}
	}

	return n
}

func (t *hashTable) SetEdgeAttributes(req EdgeSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := edgerec.Key{Src: req.Src, Dst: req.Dst, Tag: req.Tag}
	row, ok := t.rows[key]
	if !ok || row.Tombstoned {
		return skgerrors.ErrNotExist
	}
	row.Weight = req.Weight
	row.FixedProps = reorderProperties(t.schema, row.FixedProps, &row.PropertyBits, req.Props, t.log)

	return nil
}

func (t *hashTable) GetEdgeAttributes(src, dst uint32, tag uint8) (edgerec.MemoryEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key := edgerec.Key{Src: src, Dst: dst, Tag: tag}
	row, ok := t.rows[key]
	if !ok || row.Tombstoned {
		return edgerec.MemoryEdge{}, skgerrors.ErrNotExist
	}

	return *row, nil
}

func (t *hashTable) GetOutEdges(src uint32) []edgerec.MemoryEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []edgerec.MemoryEdge
	for _, row := range t.rows {
		if row.Src == src && !row.Tombstoned {
			out = append(out, *row)
		}
	}

	return out
}

func (t *hashTable) GetInEdges(dst uint32) []edgerec.MemoryEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []edgerec.MemoryEdge
	for _, row := range t.rows {
		if row.Dst == dst && !row.Tombstoned {
			out = append(out, *row)
		}
	}

	return out
}

func (t *hashTable) GetOutDegree(src uint32) int { return len(t.GetOutEdges(src)) }
func (t *hashTable) GetInDegree(dst uint32) int  { return len(t.GetInEdges(dst)) }

func (t *hashTable) ExtractAll() ([]edgerec.MemoryEdge, interval.Interval) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]edgerec.MemoryEdge, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, *row)
	}
	iv := t.iv
	t.rows = make(map[edgerec.Key]*edgerec.MemoryEdge)
	t.iv = interval.Interval{}

	return out, iv
}

func (t *hashTable) IsFull() bool {
	return t.EstimatedBytes() > t.budget
}

func (t *hashTable) EstimatedBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return estimatedRowBytes(len(t.rows), hashKeyOverhead, t.schema.FixedBytesLen())
}

func (t *hashTable) NumEdges() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, row := range t.rows {
		if !row.Tombstoned {
			n++
		}
	}

	return n
}
