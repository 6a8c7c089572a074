package memtable

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// vecTable is the Vec backend: a flat slice scanned linearly for every
// lookup. Deletes erase in place without preserving order.
type vecTable struct {
	mu     sync.RWMutex
	schema *schema.MetaAttributes
	budget int64
	log    *zap.Logger
	rows   []edgerec.MemoryEdge
	iv     interval.Interval
}

func (t *vecTable) findLocked(src, dst uint32, tag uint8) int {
	for i := range t.rows {
		r := &t.rows[i]
		if r.Src == src && r.Dst == dst && r.Tag == tag && !r.Tombstoned {
			return i
		}
	}

	return -1
}

func (t *vecTable) AddEdge(req EdgeSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bits := edgerec.NewPropertyBits()
	fixed := reorderProperties(t.schema, nil, &bits, req.Props, t.log)

	t.rows = append(t.rows, edgerec.MemoryEdge{
		Src: req.Src, Dst: req.Dst, Weight: req.Weight, Tag: req.Tag,
		PropertyBits: bits, FixedProps: fixed,
	})
	if len(t.rows) == 1 || req.Dst < t.iv.First {
		t.iv.First = req.Dst
	}
	t.iv = t.iv.ExtendTo(req.Dst)

	return nil
}

func (t *vecTable) DeleteEdge(src, dst uint32, tag uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findLocked(src, dst, tag)
	if i < 0 {
		return skgerrors.ErrNotExist
	}
	t.rows[i].Tombstoned = true

	return nil
}

func (t *vecTable) DeleteVertex(vid uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.rows {
		if (t.rows[i].Src == vid || t.rows[i].Dst == vid) && !t.rows[i].Tombstoned {
			t.rows[i].Tombstoned = true
			n++
		}
	}

	return n
}

func (t *vecTable) SetEdgeAttributes(req EdgeSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findLocked(req.Src, req.Dst, req.Tag)
	if i < 0 {
		return skgerrors.ErrNotExist
	}
	row := &t.rows[i]
	row.Weight = req.Weight
	row.FixedProps = reorderProperties(t.schema, row.FixedProps, &row.PropertyBits, req.Props, t.log)

	return nil
}

func (t *vecTable) GetEdgeAttributes(src, dst uint32, tag uint8) (edgerec.MemoryEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := t.findLocked(src, dst, tag)
	if i < 0 {
		return edgerec.MemoryEdge{}, skgerrors.ErrNotExist
	}

	return t.rows[i], nil
}

func (t *vecTable) GetOutEdges(src uint32) []edgerec.MemoryEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []edgerec.MemoryEdge
	for _, r := range t.rows {
		if r.Src == src && !r.Tombstoned {
			out = append(out, r)
		}
	}

	return out
}

func (t *vecTable) GetInEdges(dst uint32) []edgerec.MemoryEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []edgerec.MemoryEdge
	for _, r := range t.rows {
		if r.Dst == dst && !r.Tombstoned {
			out = append(out, r)
		}
	}

	return out
}

func (t *vecTable) GetOutDegree(src uint32) int {
	return len(t.GetOutEdges(src))
}

func (t *vecTable) GetInDegree(dst uint32) int {
	return len(t.GetInEdges(dst))
}

func (t *vecTable) ExtractAll() ([]edgerec.MemoryEdge, interval.Interval) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.rows
	iv := t.iv
	t.rows = nil
	t.iv = interval.Interval{}

	return out, iv
}

func (t *vecTable) IsFull() bool {
	return t.EstimatedBytes() > t.budget
}

func (t *vecTable) EstimatedBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return estimatedRowBytes(len(t.rows), vecKeyOverhead, t.schema.FixedBytesLen())
}

func (t *vecTable) NumEdges() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, r := range t.rows {
		if !r.Tombstoned {
			n++
		}
	}

	return n
}
