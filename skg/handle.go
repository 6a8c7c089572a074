// Package skg is the embedded edge-storage engine's public entry point: it
// wires a label registry and a single ShardTree behind the Handle type and
// drives the post-write compaction queues synchronously.
package skg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/blockcache"
	"github.com/Qksidmx/skgraph/compaction"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/result"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/shardtree"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/skgoptions"
	"github.com/Qksidmx/skgraph/subpartition"
)

// maxCompactionSweeps bounds the drain loop: each sweep can turn a freshly
// split leaf into a new compaction candidate, so one pass is not always
// enough, but an unbounded loop risks never returning on a pathological
// workload.
const maxCompactionSweeps = 8

// rootNodeID is the ShardTree's root, fixed at partition 0.
const rootNodeID = 0

const metaDirName = "meta"
const edgeSchemaFileName = "edge.attr.cnf"
const shardDirName = "shard0"

func metaPath(name string) string {
	return filepath.Join(name, metaDirName, edgeSchemaFileName)
}

// Handle is an open database: one label registry plus the single ShardTree
// covering its one top-level vertex interval. Multiple top-level shards
// (a <db>/shard<S>/... layout) are not implemented; every Handle owns
// exactly shard0.
type Handle struct {
	mu       sync.Mutex
	name     string
	cfg      *skgoptions.Config
	registry *schema.Registry
	tree     *shardtree.Tree
	cache    *blockcache.Cache
}

// Create initializes a new, empty database at name. It is an error if name
// already has a schema file.
func Create(name string, opts ...skgoptions.Option) error {
	cfg := skgoptions.Apply(opts...)

	if _, err := os.Stat(metaPath(name)); err == nil {
		return fmt.Errorf("skg: create %s: %w", name, skgerrors.ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Join(name, metaDirName), 0o755); err != nil {
		return fmt.Errorf("skg: create %s: %w", name, err)
	}
	if err := schema.NewRegistry().Save(metaPath(name)); err != nil {
		return fmt.Errorf("skg: create %s: write schema: %w", name, err)
	}

	cfg.Log.Info("skg: created database", zap.String("path", name))

	return nil
}

// Open opens name, creating it first if no schema file exists yet.
func Open(name string, opts ...skgoptions.Option) (*Handle, error) {
	cfg := skgoptions.Apply(opts...)

	if _, err := os.Stat(metaPath(name)); os.IsNotExist(err) {
		if err := Create(name, opts...); err != nil {
			return nil, err
		}
	}

	reg, err := schema.Load(metaPath(name))
	if err != nil {
		return nil, fmt.Errorf("skg: open %s: %w", name, err)
	}

	// Built regardless of ColumnKind: cheap relative to EdataCacheMB's
	// default budget, and lets WithColumnKind(column.KindBlocks) be
	// chosen without also requiring a matching cache option.
	cache, err := blockcache.New(cfg.EdataCacheMB, cfg.BlockSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("skg: open %s: block cache: %w", name, err)
	}

	base := subpartition.Options{
		Backend:      cfg.ElistBackend,
		ColumnKind:   cfg.ColumnKind,
		Cache:        cache,
		MmapPopulate: cfg.MmapPopulate,
		MmapLocked:   cfg.MmapLocked,
		MemKind:      cfg.MemTableKind,
		MemBufferMB:  cfg.MemBufferMB,
		Log:          cfg.Log,
	}
	root := base
	root.WithMemtable = true
	leaf := base
	leaf.WithMemtable = false

	tree, err := shardtree.Open(filepath.Join(name, shardDirName), reg,
		shardtree.Options{Root: root, Leaf: leaf}, cfg.Log)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("skg: open %s: %w", name, err)
	}

	return &Handle{name: name, cfg: cfg, registry: reg, tree: tree, cache: cache}, nil
}

func toEdgeSpec(req request.EdgeRequest) memtable.EdgeSpec {
	return memtable.EdgeSpec{Src: req.Src, Dst: req.Dst, Weight: req.Weight, Tag: req.Tag, Props: req.Props}
}

// AddEdge appends to the root MemTable, or with CheckExist set, first tries
// an update against any partition already holding the edge, translating
// to a set-with-create when none holds it yet.
func (h *Handle) AddEdge(req request.EdgeRequest) error {
	if req.Src == req.Dst {
		return fmt.Errorf("skg: add edge %s: %d -> %d: %w", req.Label, req.Src, req.Dst, skgerrors.ErrUnsupportedSelfLoop)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	spec := toEdgeSpec(req)
	if req.CheckExist {
		err := h.tree.SetEdgeAttributes(req.Label, spec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, skgerrors.ErrNotExist) {
			return err
		}
	}
	if err := h.tree.AddEdge(req.Label, spec); err != nil {
		return err
	}

	return h.drainLocked(false)
}

// SetEdgeAttributes walks every partition containing Dst, stopping at the
// first success. With CreateIfNotExist set, a miss falls back to AddEdge.
func (h *Handle) SetEdgeAttributes(req request.EdgeRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	spec := toEdgeSpec(req)
	err := h.tree.SetEdgeAttributes(req.Label, spec)
	if err == nil {
		return nil
	}
	if !errors.Is(err, skgerrors.ErrNotExist) || !req.CreateIfNotExist {
		return err
	}
	if err := h.tree.AddEdge(req.Label, spec); err != nil {
		return err
	}

	return h.drainLocked(false)
}

// DeleteEdge walks every partition containing Dst, stopping at the first
// success.
func (h *Handle) DeleteEdge(req request.EdgeRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tree.DeleteEdge(req.Label, req.Src, req.Dst, req.Tag)
}

// GetEdgeAttributes walks every partition containing Dst, returning the
// first hit.
func (h *Handle) GetEdgeAttributes(req request.EdgeRequest) (result.Edge, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	row, err := h.tree.GetEdgeAttributes(req.Label, req.Src, req.Dst, req.Tag)
	if err != nil {
		return result.Edge{}, err
	}

	return result.Edge{MemoryEdge: row}, nil
}

// GetInEdges returns every live edge whose Dst is req.Dst.
func (h *Handle) GetInEdges(req request.EdgeRequest) (result.EdgeSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := result.NewEdgeSet(req.Limit)
	if err := h.tree.GetInEdges(req.Label, req.Dst, func(row edgerec.MemoryEdge) bool { return set.Add(row) }); err != nil {
		return result.EdgeSet{}, err
	}

	return *set, nil
}

// GetOutEdges returns every live edge whose Src is req.Src.
func (h *Handle) GetOutEdges(req request.EdgeRequest) (result.EdgeSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := result.NewEdgeSet(req.Limit)
	if err := h.tree.GetOutEdges(req.Label, req.Src, func(row edgerec.MemoryEdge) bool { return set.Add(row) }); err != nil {
		return result.EdgeSet{}, err
	}

	return *set, nil
}

// GetBothEdges unions GetInEdges and GetOutEdges around req.Src.
func (h *Handle) GetBothEdges(req request.EdgeRequest) (result.EdgeSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := result.NewEdgeSet(req.Limit)
	if err := h.tree.GetBothEdges(req.Label, req.Src, func(row edgerec.MemoryEdge) bool { return set.Add(row) }); err != nil {
		return result.EdgeSet{}, err
	}

	return *set, nil
}

// GetInVertices returns the deduplicated Src of every live edge into req.Dst.
func (h *Handle) GetInVertices(req request.EdgeRequest) (result.VertexSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := result.NewVertexSet(req.Limit)
	if err := h.tree.GetInEdges(req.Label, req.Dst, func(row edgerec.MemoryEdge) bool { return set.Add(row.Src) }); err != nil {
		return result.VertexSet{}, err
	}

	return *set, nil
}

// GetOutVertices returns the deduplicated Dst of every live edge out of req.Src.
func (h *Handle) GetOutVertices(req request.EdgeRequest) (result.VertexSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := result.NewVertexSet(req.Limit)
	if err := h.tree.GetOutEdges(req.Label, req.Src, func(row edgerec.MemoryEdge) bool { return set.Add(row.Dst) }); err != nil {
		return result.VertexSet{}, err
	}

	return *set, nil
}

// GetInDegree counts live in-edges to req.Dst.
func (h *Handle) GetInDegree(req request.EdgeRequest) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return uint64(h.tree.GetInDegree(req.Label, req.Dst)), nil
}

// GetOutDegree counts live out-edges from req.Src.
func (h *Handle) GetOutDegree(req request.EdgeRequest) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return uint64(h.tree.GetOutDegree(req.Label, req.Src)), nil
}

// Flush forces every root MemTable to drain into its sub-partition,
// regardless of whether it is over budget, then sweeps the tree for any
// compaction that became necessary as a result.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.drainLocked(true)
}

// Close persists the tree's current shape and releases every handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.tree.Save(); err != nil {
		return err
	}
	if err := h.tree.Close(); err != nil {
		return err
	}

	return h.cache.Close()
}

// CreateEdgeLabel registers a new edge label, opening an empty
// SubEdgePartition for it at every existing tree node.
func (h *Handle) CreateEdgeLabel(label string, tag uint8, srcTag, dstTag uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.registry.ByLabel(label); exists {
		return fmt.Errorf("skg: create edge label %s: %w", label, skgerrors.ErrInvalidArgument)
	}

	meta := schema.MetaAttributes{Label: label, Tag: tag, SrcTag: srcTag, DstTag: dstTag}
	if err := h.tree.AddLabel(meta); err != nil {
		return err
	}
	h.registry.Register(meta)

	return h.registry.Save(metaPath(h.name))
}

// CreateEdgeAttrCol declares a new property column on label.
func (h *Handle) CreateEdgeAttrCol(label string, desc schema.ColumnDescriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	meta, ok := h.registry.ByLabel(label)
	if !ok {
		return fmt.Errorf("skg: create attr col: unknown label %s: %w", label, skgerrors.ErrInvalidArgument)
	}
	if err := h.tree.CreateEdgeAttrCol(label, desc); err != nil {
		return err
	}

	updated := *meta
	updated.Cols = append(append([]schema.ColumnDescriptor(nil), meta.Cols...), desc)
	h.registry.Register(updated)

	return h.registry.Save(metaPath(h.name))
}

// DeleteEdgeAttrCol drops a property column from label.
func (h *Handle) DeleteEdgeAttrCol(label, colName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	meta, ok := h.registry.ByLabel(label)
	if !ok {
		return fmt.Errorf("skg: delete attr col: unknown label %s: %w", label, skgerrors.ErrInvalidArgument)
	}
	if err := h.tree.DeleteEdgeAttrCol(label, colName); err != nil {
		return err
	}

	updated := *meta
	cols := make([]schema.ColumnDescriptor, 0, len(meta.Cols))
	for _, c := range meta.Cols {
		if c.Name != colName {
			cols = append(cols, c)
		}
	}
	updated.Cols = cols
	h.registry.Register(updated)

	return h.registry.Save(metaPath(h.name))
}

// drainLocked flushes every root label's MemTable when it is over budget
// (or always, when force is set), then sweeps the tree for compaction.
func (h *Handle) drainLocked(force bool) error {
	rootEP := h.tree.Root()
	for _, label := range h.tree.Labels(rootNodeID) {
		sp, ok := rootEP.Get(label)
		if !ok || sp.Memtable() == nil {
			continue
		}
		if force || sp.Memtable().IsFull() {
			if err := compaction.MemoryTableCompaction(sp); err != nil {
				return fmt.Errorf("skg: memtable compaction %s: %w", label, err)
			}
		}
	}

	if err := h.sweepCompactionLocked(); err != nil {
		return err
	}

	return h.tree.Save()
}

// sweepCompactionLocked repeatedly checks every interior and leaf
// partition's IsNeedCompact and runs Level or Split compaction as needed,
// until a full pass makes no further change or maxCompactionSweeps is
// reached.
func (h *Handle) sweepCompactionLocked() error {
	for i := 0; i < maxCompactionSweeps; i++ {
		changed := false

		for _, nodeID := range h.tree.Interior() {
			for _, label := range h.tree.Labels(nodeID) {
				parent, ok := h.tree.SubPartition(nodeID, label)
				if !ok || !parent.IsNeedCompact(h.cfg.ShardSizeMB, h.cfg.ShardSplitFactor) {
					continue
				}

				var children []*subpartition.SubEdgePartition
				for _, childID := range h.tree.ChildIDs(nodeID) {
					if child, ok := h.tree.SubPartition(childID, label); ok {
						children = append(children, child)
					}
				}
				if len(children) == 0 {
					continue
				}
				if err := compaction.LevelCompaction(parent, children, false); err != nil {
					return fmt.Errorf("skg: level compaction node %d label %s: %w", nodeID, label, err)
				}
				changed = true
			}
		}

		for _, nodeID := range h.tree.Leaves() {
			for _, label := range h.tree.Labels(nodeID) {
				leaf, ok := h.tree.SubPartition(nodeID, label)
				if !ok || !leaf.IsNeedCompact(h.cfg.ShardSizeMB, h.cfg.ShardSplitFactor) {
					continue
				}

				tag := leaf.Schema().Tag
				specs, err := compaction.SplitCompaction(leaf, h.cfg.ShardSplitFactor,
					func(seq int) (string, int) { return h.tree.AllocChildDir(nodeID, tag, seq) },
					func(dir string) (*subpartition.SubEdgePartition, error) {
						sp, err := subpartition.Open(dir, leaf.Schema(), leaf.Interval(), leaf.ChildOptions())
						if err != nil {
							return nil, err
						}
						return nil, sp.Close()
					},
				)
				if err != nil {
					return fmt.Errorf("skg: split compaction node %d label %s: %w", nodeID, label, err)
				}
				for _, spec := range specs {
					if err := h.tree.AttachChild(nodeID, spec.ID, spec.Interval); err != nil {
						return fmt.Errorf("skg: attach split child %d: %w", spec.ID, err)
					}
				}
				if len(specs) > 0 {
					changed = true
				}
			}
		}

		if !changed {
			return nil
		}
	}

	return nil
}
