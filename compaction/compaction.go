// Package compaction implements the compaction engine: the three rewrite
// strategies that keep the on-disk forest within its configured size
// budgets.
package compaction

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/subpartition"
)

// Status reports a compaction run's outcome in Go idiom: nil means
// success, any other value is the failure.
type Status = error

// MemoryTableCompaction drains a root sub-partition's MemTable into its
// on-disk rows. A no-op when the MemTable is empty.
func MemoryTableCompaction(root *subpartition.SubEdgePartition) Status {
	mem := root.Memtable()
	if mem == nil {
		return fmt.Errorf("compaction: memory-table compaction requires a root partition with a MemTable")
	}
	buffered, iv := mem.ExtractAll()
	if len(buffered) == 0 {
		return nil
	}

	return root.MergeEdgesAndFlush(buffered, iv)
}

// LevelCompaction pushes an interior partition's edges down into its
// already-existing children, bucketed by which child's interval contains
// each edge's dst.
func LevelCompaction(parent *subpartition.SubEdgePartition, children []*subpartition.SubEdgePartition, needEnsureUniq bool) Status {
	if len(children) == 0 {
		return fmt.Errorf("compaction: level compaction requires at least one child")
	}
	if err := parent.FlushCache(true); err != nil {
		return err
	}
	edges, err := parent.LoadAllEdges()
	if err != nil {
		return err
	}

	sorted := sortByDst(edges)
	if needEnsureUniq {
		sorted = dedupeKeepLast(sorted)
	}

	buckets := bucketByChildInterval(sorted, children)
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		maxDst := bucket[0].Dst
		for _, e := range bucket {
			if e.Dst > maxDst {
				maxDst = e.Dst
			}
		}
		iv := children[i].Interval().ExtendTo(maxDst)
		if err := children[i].MergeEdgesAndFlush(bucket, iv); err != nil {
			return fmt.Errorf("compaction: level merge into child %d: %w", i, err)
		}
	}

	return parent.TruncatePartition()
}

// ChildSpec describes a to-be-created child of a Split compaction: its
// caller-assigned id, the sub-partition directory the writer populated,
// and the child's interval.
type ChildSpec struct {
	ID       int
	Dir      string
	Interval interval.Interval
}

// SplitCompaction splits an oversized leaf partition into splitFactor-or-fewer
// children bucketed by dst range. splitFactor bounds the
// number of buckets; openChild is called with each ChildSpec's directory
// after the child's files have been written and the leaf truncated.
func SplitCompaction(leaf *subpartition.SubEdgePartition, splitFactor int, allocChildDir func(seq int) (dir string, id int), openChild func(dir string) (*subpartition.SubEdgePartition, error)) ([]ChildSpec, Status) {
	if splitFactor <= 0 {
		return nil, fmt.Errorf("compaction: split_factor must be positive")
	}
	if err := leaf.FlushCache(true); err != nil {
		return nil, err
	}
	edges, err := leaf.LoadAllEdges()
	if err != nil {
		return nil, err
	}
	sorted := dedupeKeepLast(sortByDst(edges))
	if len(sorted) == 0 {
		return nil, nil
	}

	buckets := splitByTargetAverage(sorted, splitFactor)
	leafIv := leaf.Interval()

	var specs []ChildSpec
	prevSplit := leafIv.First
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		hi := bucket[len(bucket)-1].Dst
		if i == len(buckets)-1 {
			hi = leafIv.Second
		}
		iv := interval.New(prevSplit, hi)
		dir, id := allocChildDir(i)
		if err := writeSplitChild(dir, bucket, iv, leaf); err != nil {
			return specs, fmt.Errorf("compaction: split child %d: %w", id, err)
		}
		specs = append(specs, ChildSpec{ID: id, Dir: dir, Interval: iv})
		prevSplit = hi + 1
	}

	if err := leaf.TruncatePartition(); err != nil {
		return specs, err
	}

	for _, spec := range specs {
		if _, err := openChild(spec.Dir); err != nil {
			return specs, fmt.Errorf("compaction: reopen split child %s: %w", spec.Dir, err)
		}
	}

	return specs, nil
}

// writeSplitChild creates a brand-new sub-partition directory and flushes
// bucket directly into it via MergeEdgesAndFlush against an empty
// partition, reusing the parent's schema.
func writeSplitChild(dir string, bucket []edgerec.MemoryEdge, iv interval.Interval, template *subpartition.SubEdgePartition) error {
	sc := cloneSchema(template.Schema())
	opts := template.ChildOptions()
	child, err := subpartition.Open(dir, sc, iv, opts)
	if err != nil {
		return err
	}
	defer child.Close()

	return child.MergeEdgesAndFlush(bucket, iv)
}

func cloneSchema(sc *schema.MetaAttributes) *schema.MetaAttributes {
	cp := *sc
	cp.Cols = append([]schema.ColumnDescriptor(nil), sc.Cols...)
	return &cp
}

func sortByDst(edges []edgerec.MemoryEdge) []edgerec.MemoryEdge {
	out := make([]edgerec.MemoryEdge, len(edges))
	copy(out, edges)
	slices.SortStableFunc(out, func(a, b edgerec.MemoryEdge) int {
		switch {
		case a.Dst < b.Dst:
			return -1
		case a.Dst > b.Dst:
			return 1
		default:
			return 0
		}
	})

	return out
}

// dedupeKeepLast deduplicates by (src,dst,tag), keeping the later
// occurrence while preserving the sorted position of each key's first
// occurrence.
func dedupeKeepLast(sorted []edgerec.MemoryEdge) []edgerec.MemoryEdge {
	order := make([]edgerec.Key, 0, len(sorted))
	last := make(map[edgerec.Key]edgerec.MemoryEdge, len(sorted))
	for _, e := range sorted {
		k := e.Key()
		if _, seen := last[k]; !seen {
			order = append(order, k)
		}
		last[k] = e
	}

	out := make([]edgerec.MemoryEdge, len(order))
	for i, k := range order {
		out[i] = last[k]
	}

	return out
}

// bucketByChildInterval assigns each edge to the first child whose
// interval contains its dst, falling back to the last child.
func bucketByChildInterval(sorted []edgerec.MemoryEdge, children []*subpartition.SubEdgePartition) [][]edgerec.MemoryEdge {
	buckets := make([][]edgerec.MemoryEdge, len(children))
	for _, e := range sorted {
		idx := len(children) - 1
		for i, c := range children {
			if c.Interval().Contains(e.Dst) {
				idx = i
				break
			}
		}
		buckets[idx] = append(buckets[idx], e)
	}

	return buckets
}

// splitByTargetAverage walks dst runs, closing a bucket once its running
// count reaches the current target
// average, recomputed after every split so the final bucket absorbs any
// remainder.
func splitByTargetAverage(sorted []edgerec.MemoryEdge, splitFactor int) [][]edgerec.MemoryEdge {
	buckets := make([][]edgerec.MemoryEdge, 0, splitFactor)
	remaining := sorted
	remainingBuckets := splitFactor

	for remainingBuckets > 1 && len(remaining) > 0 {
		targetAvg := len(remaining) / remainingBuckets
		if targetAvg < 1 {
			targetAvg = 1
		}
		cut := 0
		for cut < len(remaining) {
			cut++
			if cut >= targetAvg && (cut == len(remaining) || remaining[cut].Dst != remaining[cut-1].Dst) {
				break
			}
		}
		buckets = append(buckets, remaining[:cut])
		remaining = remaining[cut:]
		remainingBuckets--
	}
	if len(remaining) > 0 {
		buckets = append(buckets, remaining)
	}

	return buckets
}
