// Package writer implements the SubPartition writer: given an edge vector,
// which it sorts and deduplicates itself, it emits the on-disk (adjacency,
// src-idx, dst-idx) triple plus all property column files.
package writer

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
)

// ColumnOpener opens (creating if absent) the column file at path sized to
// hold rows of valueSize bytes; the caller decides the storage variant
// (mmap, group, blocks, raw) and any shared block cache.
type ColumnOpener func(path string, valueSize int) (column.Partition, error)

// Result reports what a Write call produced.
type Result struct {
	NumEdges int
	Interval interval.Interval
}

const varBlobName = "elist_col/.varblob"

// Write performs a five-step algorithm:
//  1. sort by (src, dst) ascending
//  2. deduplicate by (src, dst, tag) keeping the last, logging duplicates
//  3. build the per-dst LIFO of ordinals (the "aux table")
//  4. drain the aux table in ascending dst order into the dst-index file
//  5. emit column values, the src-index file, and the PersistentEdge rows
//     in a single forward pass, popping each row's "next" pointer off its
//     dst's aux stack as it goes
//
// edges need not be pre-sorted or pre-deduplicated; Write does both.
// mmapPopulate/mmapLocked only affect the mmap elist backend.
func Write(dir string, edges []edgerec.MemoryEdge, iv interval.Interval, sc *schema.MetaAttributes, backend elist.Backend, mmapPopulate, mmapLocked bool, openColumn ColumnOpener, log *zap.Logger) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sorted := dedupe(sortBySrcDst(edges), log)

	el, err := elist.Open(filepath.Join(dir, "elist"), backend, mmapPopulate, mmapLocked)
	if err != nil {
		return Result{}, err
	}
	defer el.Close()

	cols, varBlob, err := openColumns(dir, sc, openColumn)
	if err != nil {
		return Result{}, err
	}
	defer closeColumns(cols, varBlob)

	aux := buildAuxTable(sorted, iv)
	dstVids, dstPayload := drainAuxTable(aux, iv)
	if err := elist.WriteIndex(filepath.Join(dir, "elist.dst.idx"), dstVids, dstPayload); err != nil {
		return Result{}, err
	}

	srcVids, srcPayload, err := emit(el, cols, varBlob, sorted, aux, iv)
	if err != nil {
		return Result{}, err
	}
	if err := elist.WriteIndex(filepath.Join(dir, "elist.src.idx"), srcVids, srcPayload); err != nil {
		return Result{}, err
	}

	if err := el.Flush(); err != nil {
		return Result{}, err
	}
	for _, c := range cols {
		if err := c.part.Flush(); err != nil {
			return Result{}, fmt.Errorf("writer: flush column %s: %w", c.desc.Name, err)
		}
	}
	if varBlob != nil {
		if err := varBlob.Flush(); err != nil {
			return Result{}, err
		}
	}

	return Result{NumEdges: len(sorted), Interval: iv}, nil
}

func sortBySrcDst(edges []edgerec.MemoryEdge) []edgerec.MemoryEdge {
	out := make([]edgerec.MemoryEdge, len(edges))
	copy(out, edges)
	slices.SortStableFunc(out, func(a, b edgerec.MemoryEdge) int {
		if a.Src != b.Src {
			if a.Src < b.Src {
				return -1
			}
			return 1
		}
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

// dedupe keeps the last occurrence of each (src,dst,tag) while preserving
// the (src,dst)-sorted position of its first occurrence, logging each
// duplicate it collapses.
func dedupe(sorted []edgerec.MemoryEdge, log *zap.Logger) []edgerec.MemoryEdge {
	order := make([]edgerec.Key, 0, len(sorted))
	last := make(map[edgerec.Key]edgerec.MemoryEdge, len(sorted))
	for _, e := range sorted {
		k := e.Key()
		if _, seen := last[k]; !seen {
			order = append(order, k)
		} else {
			log.Debug("writer: duplicate edge collapsed", zap.Uint32("src", k.Src), zap.Uint32("dst", k.Dst), zap.Uint8("tag", k.Tag))
		}
		last[k] = e
	}

	out := make([]edgerec.MemoryEdge, len(order))
	for i, k := range order {
		out[i] = last[k]
	}

	return out
}

// buildAuxTable returns, for each dst in [iv.First, iv.Second], a LIFO
// (implemented as a slice used as a stack) of ordinals into sorted whose
// Dst equals that value, populated by reverse iteration.
func buildAuxTable(sorted []edgerec.MemoryEdge, iv interval.Interval) [][]int {
	width := int(iv.Len())
	aux := make([][]int, width)
	for i := len(sorted) - 1; i >= 0; i-- {
		d := sorted[i].Dst
		if !iv.Contains(d) {
			continue
		}
		slot := int(d - iv.First)
		aux[slot] = append(aux[slot], i)
	}

	return aux
}

// drainAuxTable pops one entry per non-empty dst stack, in ascending dst
// order, producing the dst-index file's contents.
func drainAuxTable(aux [][]int, iv interval.Interval) (vids, payload []uint32) {
	for slot, stack := range aux {
		if len(stack) == 0 {
			continue
		}
		top := stack[len(stack)-1]
		aux[slot] = stack[:len(stack)-1]
		vids = append(vids, iv.First+uint32(slot))
		payload = append(payload, uint32(top))
	}

	return vids, payload
}

type openColumnFile struct {
	desc schema.ColumnDescriptor
	part column.Partition
}

// openColumns opens one column.Partition per non-group-member, non-varchar
// column descriptor, plus a single shared raw var-bytes blob file used by
// every Varchar column in the schema as its companion variable-bytes
// buffer, simplified to one shared blob per partition.
func openColumns(dir string, sc *schema.MetaAttributes, openColumn ColumnOpener) ([]openColumnFile, column.Partition, error) {
	var cols []openColumnFile
	var varBlob column.Partition
	needsVarBlob := false

	for _, c := range sc.Cols {
		if c.Type == schema.ColumnTypeVarchar {
			needsVarBlob = true
			continue
		}
		width := c.RowWidth()
		if width == 0 {
			continue
		}
		path := filepath.Join(dir, "elist_col", c.Name)
		p, err := openColumn(path, width)
		if err != nil {
			return nil, nil, fmt.Errorf("writer: open column %s: %w", c.Name, err)
		}
		cols = append(cols, openColumnFile{desc: c, part: p})
	}

	if needsVarBlob {
		p, err := openColumn(filepath.Join(dir, varBlobName), 1)
		if err != nil {
			return nil, nil, fmt.Errorf("writer: open var blob: %w", err)
		}
		varBlob = p
	}

	return cols, varBlob, nil
}

func closeColumns(cols []openColumnFile, varBlob column.Partition) {
	for _, c := range cols {
		_ = c.part.Close()
	}
	if varBlob != nil {
		_ = varBlob.Close()
	}
}

// emit performs a single forward pass writing property columns, the
// src-index file, and PersistentEdge rows, pulling each row's next
// pointer off the aux table built earlier.
func emit(el elist.EdgeList, cols []openColumnFile, varBlob column.Partition, sorted []edgerec.MemoryEdge, aux [][]int, iv interval.Interval) (srcVids, srcPayload []uint32, err error) {
	runStart := -1
	var runSrc uint32
	varOffset := 0

	for i, row := range sorted {
		for _, c := range cols {
			width := c.desc.RowWidth()
			if c.desc.OffsetWithinRow+width > len(row.FixedProps) {
				continue
			}
			if err := c.part.Set(i, row.FixedProps[c.desc.OffsetWithinRow:c.desc.OffsetWithinRow+width]); err != nil {
				return nil, nil, fmt.Errorf("writer: write column %s row %d: %w", c.desc.Name, i, err)
			}
		}
		if varBlob != nil && len(row.VarProps) > 0 {
			if err := writeVarBlob(varBlob, &varOffset, row.VarProps); err != nil {
				return nil, nil, err
			}
		}

		if i == 0 || row.Src != runSrc {
			if runStart >= 0 {
				srcVids = append(srcVids, runSrc)
				srcPayload = append(srcPayload, uint32(runStart))
			}
			runStart = i
			runSrc = row.Src
		}

		next := edgerec.AbsentOrdinal
		if iv.Contains(row.Dst) {
			slot := int(row.Dst - iv.First)
			if stack := aux[slot]; len(stack) > 0 {
				next = uint32(stack[len(stack)-1])
				aux[slot] = stack[:len(stack)-1]
			}
		}

		persisted := row.ToPersistent().WithNext(next)
		if err := el.Set(i, persisted); err != nil {
			return nil, nil, fmt.Errorf("writer: write elist row %d: %w", i, err)
		}
	}

	if runStart >= 0 {
		srcVids = append(srcVids, runSrc)
		srcPayload = append(srcPayload, uint32(runStart))
	}

	return srcVids, srcPayload, nil
}

// writeVarBlob appends payload to the shared var-bytes blob at *offset,
// advancing it; the blob's column.Partition is opened with value_size=1
// so Set acts as an append-at-ordinal primitive.
func writeVarBlob(blob column.Partition, offset *int, payload []byte) error {
	for i, b := range payload {
		if err := blob.Set(*offset+i, []byte{b}); err != nil {
			return fmt.Errorf("writer: write var blob: %w", err)
		}
	}
	*offset += len(payload)

	return nil
}
