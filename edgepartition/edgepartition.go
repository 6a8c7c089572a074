// Package edgepartition implements EdgePartition: one SubEdgePartition per
// edge label at a single vertex interval, dispatching labeled requests to
// the matching sub-partition and broadcasting label-agnostic
// vertex-centric queries across all of them.
package edgepartition

import (
	"sync"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/subpartition"
)

// EdgePartition holds every label's SubEdgePartition for one vertex
// interval (one tree node's worth of storage).
type EdgePartition struct {
	mu      sync.RWMutex
	iv      interval.Interval
	byLabel map[string]*subpartition.SubEdgePartition
}

// New returns an EdgePartition covering iv with no labels registered yet.
func New(iv interval.Interval) *EdgePartition {
	return &EdgePartition{iv: iv, byLabel: make(map[string]*subpartition.SubEdgePartition)}
}

// Put registers label's SubEdgePartition. Replaces any prior registration
// for the same label (used when compaction reopens rewritten files).
func (e *EdgePartition) Put(label string, sp *subpartition.SubEdgePartition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byLabel[label] = sp
}

// Get returns label's SubEdgePartition, if registered.
func (e *EdgePartition) Get(label string) (*subpartition.SubEdgePartition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sp, ok := e.byLabel[label]
	return sp, ok
}

// All returns every registered SubEdgePartition, for label-agnostic
// broadcast queries.
func (e *EdgePartition) All() []*subpartition.SubEdgePartition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*subpartition.SubEdgePartition, 0, len(e.byLabel))
	for _, sp := range e.byLabel {
		out = append(out, sp)
	}

	return out
}

// Interval returns the vertex-id range this EdgePartition covers.
func (e *EdgePartition) Interval() interval.Interval { return e.iv }

// ExtendTo grows the interval to cover vid (propagated from a labeled
// sub-partition's own growth on add_edge).
func (e *EdgePartition) ExtendTo(vid uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iv = e.iv.ExtendTo(vid)
}

// targets resolves which sub-partitions a request should visit: exactly
// one when label is non-empty, or every registered label when it is empty,
// since vertex-centric queries that ignore label broadcast to all
// sub-partitions.
func (e *EdgePartition) targets(label string) ([]*subpartition.SubEdgePartition, error) {
	if label == "" {
		return e.All(), nil
	}
	sp, ok := e.Get(label)
	if !ok {
		return nil, skgerrors.ErrNotExist
	}

	return []*subpartition.SubEdgePartition{sp}, nil
}

// AddEdge requires a label: it always targets exactly one SubEdgePartition.
func (e *EdgePartition) AddEdge(label string, spec memtable.EdgeSpec) error {
	sp, ok := e.Get(label)
	if !ok {
		return skgerrors.ErrNotExist
	}
	if err := sp.AddEdge(spec); err != nil {
		return err
	}
	e.ExtendTo(spec.Dst)

	return nil
}

// DeleteEdge requires a label: deletes are always dispatched per-label.
func (e *EdgePartition) DeleteEdge(label string, src, dst uint32, tag uint8) error {
	sp, ok := e.Get(label)
	if !ok {
		return skgerrors.ErrNotExist
	}

	return sp.DeleteEdge(src, dst, tag)
}

// SetEdgeAttributes requires a label.
func (e *EdgePartition) SetEdgeAttributes(label string, spec memtable.EdgeSpec) error {
	sp, ok := e.Get(label)
	if !ok {
		return skgerrors.ErrNotExist
	}

	return sp.SetEdgeAttributes(spec)
}

// GetEdgeAttributes requires a label.
func (e *EdgePartition) GetEdgeAttributes(label string, src, dst uint32, tag uint8) (edgerec.MemoryEdge, error) {
	sp, ok := e.Get(label)
	if !ok {
		return edgerec.MemoryEdge{}, skgerrors.ErrNotExist
	}

	return sp.GetEdgeAttributes(src, dst, tag)
}

// GetOutEdges dispatches to label's sub-partition, or broadcasts across
// every label when label is empty, stopping early if add returns false.
func (e *EdgePartition) GetOutEdges(label string, src uint32, add func(edgerec.MemoryEdge) bool) error {
	targets, err := e.targets(label)
	if err != nil {
		return err
	}
	for _, sp := range targets {
		stop := false
		if err := sp.GetOutEdges(src, func(row edgerec.MemoryEdge) bool {
			if !add(row) {
				stop = true
				return false
			}
			return true
		}); err != nil {
			return err
		}
		if stop {
			return nil
		}
	}

	return nil
}

// GetInEdges dispatches to label's sub-partition, or broadcasts across
// every label when label is empty.
func (e *EdgePartition) GetInEdges(label string, dst uint32, add func(edgerec.MemoryEdge) bool) error {
	targets, err := e.targets(label)
	if err != nil {
		return err
	}
	for _, sp := range targets {
		stop := false
		if err := sp.GetInEdges(dst, func(row edgerec.MemoryEdge) bool {
			if !add(row) {
				stop = true
				return false
			}
			return true
		}); err != nil {
			return err
		}
		if stop {
			return nil
		}
	}

	return nil
}

// GetOutDegree sums live out-degree across the dispatched sub-partitions.
func (e *EdgePartition) GetOutDegree(label string, src uint32) int {
	n := 0
	_ = e.GetOutEdges(label, src, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// GetInDegree sums live in-degree across the dispatched sub-partitions.
func (e *EdgePartition) GetInDegree(label string, dst uint32) int {
	n := 0
	_ = e.GetInEdges(label, dst, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// DeleteVertex tombstones vid across every label's sub-partition.
func (e *EdgePartition) DeleteVertex(vid uint32) (int, error) {
	total := 0
	for _, sp := range e.All() {
		n, err := sp.DeleteVertex(vid)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

// Close releases every label's sub-partition handles.
func (e *EdgePartition) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, sp := range e.byLabel {
		if err := sp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
