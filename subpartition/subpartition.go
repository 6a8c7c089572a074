// Package subpartition implements the SubEdgePartition: the immutable
// on-disk unit addressed by an adjacency array plus src/dst sparse indexes
// plus per-property column files, optionally paired with a MemTable when
// it is a shard's root partition.
package subpartition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/blockcache"
	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/writer"
)

// Options configures how a SubEdgePartition opens its on-disk files.
type Options struct {
	Backend      elist.Backend
	ColumnKind   column.Kind
	Cache        *blockcache.Cache // required when ColumnKind == column.KindBlocks
	MmapPopulate bool              // prefault mmap pages at open/grow time
	MmapLocked   bool              // mlock mmap pages resident
	WithMemtable bool
	MemKind      memtable.Kind
	MemBufferMB  int
	Log          *zap.Logger
}

type columnFile struct {
	desc schema.ColumnDescriptor
	part column.Partition
}

// SubEdgePartition owns one directory's worth of adjacency-array readers
// and property columns, in schema column-declaration order, and
// optionally one MemTable: only for root partitions in non-empty shards,
// i.e. shard_id != 0 && partition_id == 0.
type SubEdgePartition struct {
	mu      sync.RWMutex
	dir     string
	schema  *schema.MetaAttributes
	iv      interval.Interval
	opts    Options
	log     *zap.Logger
	el      elist.EdgeList
	srcIdx  elist.Index
	dstIdx  elist.Index
	cols    []columnFile
	varBlob column.Partition
	mem     memtable.Table
}

// Open opens (creating on first use) the SubEdgePartition rooted at dir.
func Open(dir string, sc *schema.MetaAttributes, iv interval.Interval, opts Options) (*SubEdgePartition, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	el, err := elist.Open(filepath.Join(dir, "elist"), opts.Backend, opts.MmapPopulate, opts.MmapLocked)
	if err != nil {
		return nil, err
	}
	srcIdx, err := elist.OpenIndex(filepath.Join(dir, "elist.src.idx"))
	if err != nil {
		_ = el.Close()
		return nil, err
	}
	dstIdx, err := elist.OpenIndex(filepath.Join(dir, "elist.dst.idx"))
	if err != nil {
		_ = el.Close()
		_ = srcIdx.Close()
		return nil, err
	}

	p := &SubEdgePartition{
		dir: dir, schema: sc, iv: iv, opts: opts, log: opts.Log,
		el: el, srcIdx: srcIdx, dstIdx: dstIdx,
	}
	if err := p.openColumns(); err != nil {
		_ = p.closeHandlers()
		return nil, err
	}
	if opts.WithMemtable {
		p.mem = memtable.New(opts.MemKind, sc, opts.MemBufferMB, opts.Log)
	}

	return p, nil
}

func (p *SubEdgePartition) columnOpener() writer.ColumnOpener {
	return func(path string, valueSize int) (column.Partition, error) {
		switch p.opts.ColumnKind {
		case column.KindBlocks:
			if p.opts.Cache == nil {
				return nil, fmt.Errorf("subpartition: block column kind requires a cache: %w", skgerrors.ErrInvalidArgument)
			}
			return column.OpenBlocks(p.opts.Cache, p.iv, path, valueSize)
		case column.KindFileRaw:
			return column.OpenRaw(path, valueSize)
		default:
			return column.OpenMmap(path, valueSize, p.opts.MmapPopulate, p.opts.MmapLocked)
		}
	}
}

func (p *SubEdgePartition) openColumns() error {
	open := p.columnOpener()
	needsVarBlob := false
	for _, c := range p.schema.Cols {
		if c.Type == schema.ColumnTypeVarchar {
			needsVarBlob = true
			continue
		}
		width := c.RowWidth()
		if width == 0 {
			continue
		}
		part, err := open(filepath.Join(p.dir, "elist_col", c.Name), width)
		if err != nil {
			return fmt.Errorf("subpartition: open column %s: %w", c.Name, err)
		}
		p.cols = append(p.cols, columnFile{desc: c, part: part})
	}
	if needsVarBlob {
		part, err := open(filepath.Join(p.dir, "elist_col", ".varblob"), 1)
		if err != nil {
			return fmt.Errorf("subpartition: open var blob: %w", err)
		}
		p.varBlob = part
	}

	return nil
}

// Interval returns the partition's current vertex-id range.
func (p *SubEdgePartition) Interval() interval.Interval {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.iv
}

// HasMemtable reports whether this is a root partition owning a MemTable.
func (p *SubEdgePartition) HasMemtable() bool {
	return p.mem != nil
}

// Memtable returns the partition's MemTable, or nil on a read-only
// partition. Used by the compaction engine to drive MemoryTable
// compaction (extract_all then MergeEdgesAndFlush).
func (p *SubEdgePartition) Memtable() memtable.Table {
	return p.mem
}

// Schema returns the partition's MetaAttributes.
func (p *SubEdgePartition) Schema() *schema.MetaAttributes {
	return p.schema
}

// ChildOptions returns the Options a newly created sibling or child
// sub-partition should open with: same backend, column storage variant,
// and cache, but never a MemTable (compaction children are always
// read-only at the edge level until the tree promotes one to root).
func (p *SubEdgePartition) ChildOptions() Options {
	o := p.opts
	o.WithMemtable = false
	return o
}

// AddEdge is only valid on a partition with a MemTable.
func (p *SubEdgePartition) AddEdge(spec memtable.EdgeSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mem == nil {
		return fmt.Errorf("subpartition: add_edge on read-only partition: %w", skgerrors.ErrInvalidArgument)
	}
	if err := p.mem.AddEdge(spec); err != nil {
		return err
	}
	p.iv = p.iv.ExtendTo(spec.Dst)

	return nil
}

// DeleteEdge tries the MemTable first, then falls back to locating and
// tombstoning the on-disk row via the src-index range scan.
func (p *SubEdgePartition) DeleteEdge(src, dst uint32, tag uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem != nil {
		if err := p.mem.DeleteEdge(src, dst, tag); err == nil {
			return nil
		} else if !errors.Is(err, skgerrors.ErrNotExist) {
			return err
		}
	}

	ord, err := p.locateLocked(src, dst, tag)
	if err != nil {
		return err
	}
	row, err := p.el.Get(ord)
	if err != nil {
		return err
	}
	return p.el.Set(ord, row.Tombstone())
}

// SetEdgeAttributes tries the MemTable first, then updates the on-disk
// column files and the row's properties bitset in place.
func (p *SubEdgePartition) SetEdgeAttributes(spec memtable.EdgeSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem != nil {
		if err := p.mem.SetEdgeAttributes(spec); err == nil {
			return nil
		} else if !errors.Is(err, skgerrors.ErrNotExist) {
			return err
		}
	}

	ord, err := p.locateLocked(spec.Src, spec.Dst, spec.Tag)
	if err != nil {
		return err
	}
	row, err := p.el.Get(ord)
	if err != nil {
		return err
	}
	row.Weight = spec.Weight
	for _, pv := range spec.Props {
		col, ok := p.schema.Column(pv.Name)
		if !ok {
			p.log.Debug("subpartition: ignoring undeclared property", zap.String("name", pv.Name))
			continue
		}
		cf := p.findColumnLocked(col.ID)
		if cf == nil {
			continue
		}
		width := cf.desc.RowWidth()
		buf := make([]byte, width)
		n := len(pv.Value)
		if n > width {
			n = width
		}
		copy(buf, pv.Value[:n])
		if err := cf.part.Set(ord, buf); err != nil {
			return err
		}
		if err := row.PropertyBits.Set(col.ID); err != nil {
			p.log.Debug("subpartition: column id out of range", zap.Uint8("id", col.ID))
		}
	}

	return p.el.Set(ord, row)
}

// GetEdgeAttributes tries the MemTable first, then composes a result from
// the on-disk row and column files.
func (p *SubEdgePartition) GetEdgeAttributes(src, dst uint32, tag uint8) (edgerec.MemoryEdge, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.mem != nil {
		if row, err := p.mem.GetEdgeAttributes(src, dst, tag); err == nil {
			return row, nil
		} else if !errors.Is(err, skgerrors.ErrNotExist) {
			return edgerec.MemoryEdge{}, err
		}
	}

	ord, err := p.locateLocked(src, dst, tag)
	if err != nil {
		return edgerec.MemoryEdge{}, err
	}

	return p.composeRowLocked(ord)
}

// GetOutEdges scans the src-index range, skipping tombstones, and unions
// the result with any MemTable hits.
func (p *SubEdgePartition) GetOutEdges(src uint32, add func(edgerec.MemoryEdge) bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.mem != nil {
		for _, row := range p.mem.GetOutEdges(src) {
			if !add(row) {
				return nil
			}
		}
	}

	start, end, ok := p.srcRangeLocked(src)
	if !ok {
		return nil
	}
	for i := start; i < end; i++ {
		edge, err := p.el.Get(i)
		if err != nil {
			return err
		}
		if edge.Tombstoned() {
			continue
		}
		row, err := p.composeRowLocked(i)
		if err != nil {
			return err
		}
		if !add(row) {
			return nil
		}
	}

	return nil
}

// GetInEdges chases the dst-index chain, skipping tombstones, and unions
// the result with any MemTable hits.
func (p *SubEdgePartition) GetInEdges(dst uint32, add func(edgerec.MemoryEdge) bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.mem != nil {
		for _, row := range p.mem.GetInEdges(dst) {
			if !add(row) {
				return nil
			}
		}
	}

	head, ok := p.dstIdx.Lookup(dst)
	if !ok {
		return nil
	}
	for ord := head; ord != edgerec.AbsentOrdinal; {
		edge, err := p.el.Get(int(ord))
		if err != nil {
			return err
		}
		if !edge.Tombstoned() {
			row, err := p.composeRowLocked(int(ord))
			if err != nil {
				return err
			}
			if !add(row) {
				return nil
			}
		}
		ord = edge.Next()
	}

	return nil
}

// GetOutDegree counts live out-edges only.
func (p *SubEdgePartition) GetOutDegree(src uint32) int {
	n := 0
	_ = p.GetOutEdges(src, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// GetInDegree counts live in-edges only.
func (p *SubEdgePartition) GetInDegree(dst uint32) int {
	n := 0
	_ = p.GetInEdges(dst, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// DeleteVertex tombstones vid's MemTable rows (if any), its out-range, and
// its in-chain, returning the total rows newly tombstoned.
func (p *SubEdgePartition) DeleteVertex(vid uint32) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	if p.mem != nil {
		n += p.mem.DeleteVertex(vid)
	}

	if start, end, ok := p.srcRangeLocked(vid); ok {
		for i := start; i < end; i++ {
			edge, err := p.el.Get(i)
			if err != nil {
				return n, err
			}
			if edge.Tombstoned() {
				continue
			}
			if err := p.el.Set(i, edge.Tombstone()); err != nil {
				return n, err
			}
			n++
		}
	}

	if head, ok := p.dstIdx.Lookup(vid); ok {
		for ord := head; ord != edgerec.AbsentOrdinal; {
			edge, err := p.el.Get(int(ord))
			if err != nil {
				return n, err
			}
			next := edge.Next()
			if !edge.Tombstoned() {
				if err := p.el.Set(int(ord), edge.Tombstone()); err != nil {
					return n, err
				}
				n++
			}
			ord = next
		}
	}

	return n, nil
}

// FlushCache flushes the adjacency file, every column file, and the var
// blob when force is set; without force it does nothing. The two index
// files are written whole by the writer and are not flushed here.
func (p *SubEdgePartition) FlushCache(force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force {
		return nil
	}
	if err := p.el.Flush(); err != nil {
		return err
	}
	for _, c := range p.cols {
		if err := c.part.Flush(); err != nil {
			return err
		}
	}
	if p.varBlob != nil {
		if err := p.varBlob.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// LoadAllEdges returns one MemoryEdge per live on-disk row, in ordinal
// order, with every declared column read into the row.
func (p *SubEdgePartition) LoadAllEdges() ([]edgerec.MemoryEdge, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := p.el.NumEdges()
	out := make([]edgerec.MemoryEdge, 0, n)
	for i := 0; i < n; i++ {
		edge, err := p.el.Get(i)
		if err != nil {
			return nil, err
		}
		if edge.Tombstoned() {
			continue
		}
		row, err := p.composeRowLocked(i)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, nil
}

// IsNeedCompact applies the compact-size policy:
// estimated_bytes > shard_size_mb*1MB / (1 + split_factor).
func (p *SubEdgePartition) IsNeedCompact(shardSizeMB, splitFactor int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	threshold := int64(shardSizeMB) * 1024 * 1024 / int64(1+splitFactor)
	return p.estimatedBytesLocked() > threshold
}

func (p *SubEdgePartition) estimatedBytesLocked() int64 {
	n := int64(p.el.NumEdges())
	return n * int64(edgerec.OnDiskSize)
}

// MergeEdgesAndFlush is the core compaction primitive: load every live
// on-disk edge, concatenate buffered, extend the interval to cover
// newInterval's upper bound, hand off to the writer, then reopen
// readers against the freshly written files.
func (p *SubEdgePartition) MergeEdgesAndFlush(buffered []edgerec.MemoryEdge, newInterval interval.Interval) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.loadAllEdgesLocked()
	if err != nil {
		return err
	}
	all := append(existing, buffered...)
	// The partition keeps its own lower bound and grows only its upper
	// bound to cover newInterval's second.
	merged := p.iv.ExtendTo(newInterval.Second)

	if err := p.closeHandlersLocked(); err != nil {
		return err
	}
	res, err := writer.Write(p.dir, all, merged, p.schema, p.opts.Backend, p.opts.MmapPopulate, p.opts.MmapLocked, p.columnOpener(), p.log)
	if err != nil {
		return err
	}
	if err := p.reopenLocked(); err != nil {
		return err
	}
	p.iv = res.Interval

	return nil
}

func (p *SubEdgePartition) loadAllEdgesLocked() ([]edgerec.MemoryEdge, error) {
	n := p.el.NumEdges()
	out := make([]edgerec.MemoryEdge, 0, n)
	for i := 0; i < n; i++ {
		edge, err := p.el.Get(i)
		if err != nil {
			return nil, err
		}
		if edge.Tombstoned() {
			continue
		}
		row, err := p.composeRowLocked(i)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, nil
}

// TruncatePartition zero-lengths the three core files and every column
// file, used by Split compaction before a leaf is torn down.
func (p *SubEdgePartition) TruncatePartition() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.closeHandlersLocked(); err != nil {
		return err
	}
	for _, name := range []string{"elist", "elist.src.idx", "elist.dst.idx"} {
		if err := column.PreSize(filepath.Join(p.dir, name), 0, 1); err != nil {
			return err
		}
	}
	for _, c := range p.cols {
		if err := column.PreSize(filepath.Join(p.dir, "elist_col", c.desc.Name), 0, c.desc.RowWidth()); err != nil {
			return err
		}
	}

	return p.reopenLocked()
}

// CreateEdgeAttrCol appends a new column to the schema, pre-sizes its file
// to num_edges*value_size, and reopens it for use.
func (p *SubEdgePartition) CreateEdgeAttrCol(desc schema.ColumnDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := filepath.Join(p.dir, "elist_col", desc.Name)
	if err := column.PreSize(path, p.el.NumEdges(), desc.RowWidth()); err != nil {
		return err
	}
	part, err := p.columnOpener()(path, desc.RowWidth())
	if err != nil {
		return err
	}
	p.schema.Cols = append(p.schema.Cols, desc)
	p.cols = append(p.cols, columnFile{desc: desc, part: part})

	return nil
}

// DeleteEdgeAttrCol drops a declared column from the schema and removes its
// file. A no-op when the column is not declared.
func (p *SubEdgePartition) DeleteEdgeAttrCol(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, c := range p.cols {
		if c.desc.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	if err := p.cols[idx].part.Close(); err != nil {
		return err
	}
	p.cols = append(p.cols[:idx], p.cols[idx+1:]...)

	for i, c := range p.schema.Cols {
		if c.Name == name {
			p.schema.Cols = append(p.schema.Cols[:i], p.schema.Cols[i+1:]...)
			break
		}
	}

	return os.Remove(filepath.Join(p.dir, "elist_col", name))
}

// Close releases every file handle and mmap region held by the partition.
// It is idempotent.
func (p *SubEdgePartition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeHandlersLocked()
}

func (p *SubEdgePartition) closeHandlers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeHandlersLocked()
}

func (p *SubEdgePartition) closeHandlersLocked() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.el != nil {
		note(p.el.Close())
	}
	if p.srcIdx != nil {
		note(p.srcIdx.Close())
	}
	if p.dstIdx != nil {
		note(p.dstIdx.Close())
	}
	for _, c := range p.cols {
		note(c.part.Close())
	}
	if p.varBlob != nil {
		note(p.varBlob.Close())
	}
	p.el, p.srcIdx, p.dstIdx, p.cols, p.varBlob = nil, nil, nil, nil, nil

	return firstErr
}

func (p *SubEdgePartition) reopenLocked() error {
	el, err := elist.Open(filepath.Join(p.dir, "elist"), p.opts.Backend, p.opts.MmapPopulate, p.opts.MmapLocked)
	if err != nil {
		return err
	}
	srcIdx, err := elist.OpenIndex(filepath.Join(p.dir, "elist.src.idx"))
	if err != nil {
		_ = el.Close()
		return err
	}
	dstIdx, err := elist.OpenIndex(filepath.Join(p.dir, "elist.dst.idx"))
	if err != nil {
		_ = el.Close()
		_ = srcIdx.Close()
		return err
	}
	p.el, p.srcIdx, p.dstIdx = el, srcIdx, dstIdx

	return p.openColumns()
}

// locateLocked finds the ordinal of the live row matching (src,dst,tag) by
// scanning the src-index range.
func (p *SubEdgePartition) locateLocked(src, dst uint32, tag uint8) (int, error) {
	start, end, ok := p.srcRangeLocked(src)
	if !ok {
		return 0, skgerrors.ErrNotExist
	}
	for i := start; i < end; i++ {
		edge, err := p.el.Get(i)
		if err != nil {
			return 0, err
		}
		if edge.Tombstoned() {
			continue
		}
		if edge.Dst == dst && edge.Tag == tag {
			return i, nil
		}
	}

	return 0, skgerrors.ErrNotExist
}

// srcRangeLocked resolves src's half-open ordinal range from the sparse
// src-index, using the next indexed src's first_ordinal as the past-last
// bound. Relies on src rows being contiguous in elist.
func (p *SubEdgePartition) srcRangeLocked(src uint32) (start, end int, ok bool) {
	first, ok := p.srcIdx.Lookup(src)
	if !ok {
		return 0, 0, false
	}
	if next, hasNext := p.srcIdx.NextPayload(src); hasNext {
		return int(first), int(next), true
	}

	return int(first), p.el.NumEdges(), true
}

func (p *SubEdgePartition) findColumnLocked(id uint8) *columnFile {
	for i := range p.cols {
		if p.cols[i].desc.ID == id {
			return &p.cols[i]
		}
	}

	return nil
}

// composeRowLocked reads the PersistentEdge at ordinal plus every declared
// column into a MemoryEdge.
func (p *SubEdgePartition) composeRowLocked(ordinal int) (edgerec.MemoryEdge, error) {
	edge, err := p.el.Get(ordinal)
	if err != nil {
		return edgerec.MemoryEdge{}, err
	}
	fixed := make([]byte, p.schema.FixedBytesLen())
	for _, c := range p.cols {
		if !edge.PropertyBits.Test(c.desc.ID) {
			continue
		}
		width := c.desc.RowWidth()
		buf := make([]byte, width)
		if err := c.part.Get(ordinal, buf); err != nil {
			return edgerec.MemoryEdge{}, err
		}
		if c.desc.OffsetWithinRow+width <= len(fixed) {
			copy(fixed[c.desc.OffsetWithinRow:c.desc.OffsetWithinRow+width], buf)
		}
	}

	return edgerec.MemoryEdge{
		Src: edge.Src, Dst: edge.Dst, Weight: edge.Weight, Tag: edge.Tag,
		Tombstoned: edge.Tombstoned(), PropertyBits: edge.PropertyBits, FixedProps: fixed,
	}, nil
}
