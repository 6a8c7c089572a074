// Package shardtree implements the ShardTree: the partition forest
// covering one top-level vertex interval. The root holds the writable
// MemTable-backed partitions; interior and leaf nodes are read-only at the
// tree level and change only through the compaction engine.
package shardtree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Qksidmx/skgraph/edgepartition"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/subpartition"
)

const intervalsFileName = "intervals.yaml"

// nodeRecord is the on-disk shape of one tree node, persisted as a flat
// list so the tree's structure survives a process restart without
// requiring every partition to be opened just to discover its neighbors.
type nodeRecord struct {
	ID       int    `yaml:"id"`
	ParentID int    `yaml:"parent_id"` // -1 for the root
	First    uint32 `yaml:"first"`
	Second   uint32 `yaml:"second"`
}

// childItem is the ordering key stored in a node's children index: the
// btree orders siblings by their interval's lower bound, which lets a
// containment lookup stop scanning as soon as it passes vid.
type childItem struct {
	first uint32
	node  *node
}

func lessChildItem(a, b childItem) bool { return a.first < b.first }

type node struct {
	id       int
	iv       interval.Interval
	parent   *node
	children []*node
	childIdx *btree.BTreeG[childItem]
	ep       *edgepartition.EdgePartition
}

func newNode(id int, iv interval.Interval, parent *node) *node {
	return &node{
		id: id, iv: iv, parent: parent,
		childIdx: btree.NewG(8, lessChildItem),
		ep:       edgepartition.New(iv),
	}
}

func (n *node) addChild(c *node) {
	n.children = append(n.children, c)
	n.childIdx.ReplaceOrInsert(childItem{first: c.iv.First, node: c})
}

// containingChild returns the one child (of n) whose interval contains
// vid, if any. Children cover a disjoint union of the parent's interval,
// so at most one can match.
func (n *node) containingChild(vid uint32) (*node, bool) {
	var candidate *node
	n.childIdx.Ascend(func(it childItem) bool {
		if it.first > vid {
			return false
		}
		candidate = it.node
		return true
	})
	if candidate != nil && candidate.iv.Contains(vid) {
		return candidate, true
	}

	return nil, false
}

// Options bundles the two SubEdgePartition option sets a Tree needs: the
// root always opens WithMemtable, every other node never does. ChildOptions
// on subpartition.SubEdgePartition derives Leaf from Root at runtime, but
// a freshly created Tree has no partition yet to derive from.
type Options struct {
	Root subpartition.Options
	Leaf subpartition.Options
}

// Tree is one top-level vertex interval's partition forest.
type Tree struct {
	mu        sync.RWMutex
	shardDir  string
	registry  *schema.Registry
	opts      Options
	log       *zap.Logger
	nextID    int
	root      *node
	byID      map[int]*node
}

// Open opens (creating on first use) the ShardTree rooted at shardDir. The
// registry supplies every label's schema; a label missing a SubEdgePartition
// under an existing node directory is created empty.
func Open(shardDir string, registry *schema.Registry, opts Options, log *zap.Logger) (*Tree, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		return nil, fmt.Errorf("shardtree: mkdir %s: %w", shardDir, err)
	}

	t := &Tree{
		shardDir: shardDir, registry: registry, opts: opts, log: log,
		byID: make(map[int]*node),
	}

	records, err := loadIntervals(filepath.Join(shardDir, intervalsFileName))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		records = []nodeRecord{{ID: 0, ParentID: -1, First: 0, Second: 0}}
	}

	if err := t.rebuild(records); err != nil {
		return nil, err
	}

	return t, nil
}

func loadIntervals(path string) ([]nodeRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shardtree: read %s: %w", path, err)
	}

	var records []nodeRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("shardtree: unmarshal %s: %w", path, err)
	}

	return records, nil
}

// rebuild reconstructs the node graph from a flat record list (parents
// always precede children, enforced by construction) and opens every
// registered label's SubEdgePartition under each node.
func (t *Tree) rebuild(records []nodeRecord) error {
	for _, rec := range records {
		iv := interval.New(rec.First, rec.Second)
		var parent *node
		if rec.ParentID >= 0 {
			p, ok := t.byID[rec.ParentID]
			if !ok {
				return fmt.Errorf("shardtree: record %d references unknown parent %d: %w", rec.ID, rec.ParentID, skgerrors.ErrCorruption)
			}
			parent = p
		}

		n := newNode(rec.ID, iv, parent)
		if err := t.openLabels(n); err != nil {
			return err
		}

		t.byID[rec.ID] = n
		if parent == nil {
			t.root = n
		} else {
			parent.addChild(n)
		}
		if rec.ID >= t.nextID {
			t.nextID = rec.ID + 1
		}
	}

	if t.root == nil {
		return fmt.Errorf("shardtree: no root record: %w", skgerrors.ErrCorruption)
	}

	return nil
}

func (t *Tree) openLabels(n *node) error {
	for _, sc := range t.registry.All() {
		sc := sc
		dir := t.partitionDir(n.id, n.iv, sc.Tag)
		opts := t.opts.Leaf
		if n.id == 0 {
			opts = t.opts.Root
		}
		sp, err := subpartition.Open(dir, &sc, n.iv, opts)
		if err != nil {
			return fmt.Errorf("shardtree: open label %s at node %d: %w", sc.Label, n.id, err)
		}
		n.ep.Put(sc.Label, sp)
	}

	return nil
}

// partitionDir follows the directory convention:
// <shard>/partition<P>-<lo>-<hi>-<tag>.
func (t *Tree) partitionDir(id int, iv interval.Interval, tag uint8) string {
	return filepath.Join(t.shardDir, fmt.Sprintf("partition%d-%d-%d-%d", id, iv.First, iv.Second, tag))
}

// Save rewrites the intervals file to reflect the current tree shape.
// Called after every successful write that may have changed it (new
// children from a split, a truncated interior node).
func (t *Tree) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var records []nodeRecord
	var walk func(n *node, parentID int)
	walk = func(n *node, parentID int) {
		records = append(records, nodeRecord{ID: n.id, ParentID: parentID, First: n.iv.First, Second: n.iv.Second})
		for _, c := range n.children {
			walk(c, n.id)
		}
	}
	walk(t.root, -1)

	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("shardtree: marshal intervals: %w", err)
	}

	return os.WriteFile(filepath.Join(t.shardDir, intervalsFileName), data, 0o644)
}

// nodesContaining returns every node, walking from the root downward,
// whose interval contains vid. Because a child's interval is always a subset
// of its parent's, this is exactly the root-to-leaf path that still
// contains vid at every step.
func (t *Tree) nodesContaining(vid uint32) []*node {
	var out []*node
	n := t.root
	for n != nil {
		if !n.iv.Contains(vid) {
			break
		}
		out = append(out, n)
		child, ok := n.containingChild(vid)
		if !ok {
			break
		}
		n = child
	}

	return out
}

// AddEdge appends to the root's MemTable. The caller is responsible for
// driving MemoryTable/compaction queues afterward (skg.Handle does this
// synchronously after each write).
func (t *Tree) AddEdge(label string, spec memtable.EdgeSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.root.ep.AddEdge(label, spec); err != nil {
		return err
	}
	t.root.iv = t.root.ep.Interval()

	return nil
}

// SetEdgeAttributes walks every node whose interval contains dst, stopping
// at the first success.
func (t *Tree) SetEdgeAttributes(label string, spec memtable.EdgeSpec) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.nodesContaining(spec.Dst) {
		if err := n.ep.SetEdgeAttributes(label, spec); err == nil {
			return nil
		} else if !errIsNotExist(err) {
			return err
		}
	}

	return skgerrors.ErrNotExist
}

// DeleteEdge walks every node whose interval contains dst, stopping at the
// first success.
func (t *Tree) DeleteEdge(label string, src, dst uint32, tag uint8) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.nodesContaining(dst) {
		if err := n.ep.DeleteEdge(label, src, dst, tag); err == nil {
			return nil
		} else if !errIsNotExist(err) {
			return err
		}
	}

	return skgerrors.ErrNotExist
}

// GetEdgeAttributes walks every node whose interval contains dst, returning
// the first hit.
func (t *Tree) GetEdgeAttributes(label string, src, dst uint32, tag uint8) (edgerec.MemoryEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.nodesContaining(dst) {
		row, err := n.ep.GetEdgeAttributes(label, src, dst, tag)
		if err == nil {
			return row, nil
		}
		if !errIsNotExist(err) {
			return edgerec.MemoryEdge{}, err
		}
	}

	return edgerec.MemoryEdge{}, skgerrors.ErrNotExist
}

// GetInEdges walks every node whose interval contains dst: only those
// partitions can hold an in-edge to it.
func (t *Tree) GetInEdges(label string, dst uint32, add func(edgerec.MemoryEdge) bool) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.nodesContaining(dst) {
		stop := false
		if err := n.ep.GetInEdges(label, dst, func(row edgerec.MemoryEdge) bool {
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

// GetOutEdges broadcasts to every node: an out-edge's dst may land in any
// interval, so the src side alone cannot narrow the search.
func (t *Tree) GetOutEdges(label string, src uint32, add func(edgerec.MemoryEdge) bool) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.all() {
		stop := false
		if err := n.ep.GetOutEdges(label, src, func(row edgerec.MemoryEdge) bool {
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

// GetInDegree sums live in-degree over every containing node.
func (t *Tree) GetInDegree(label string, dst uint32) int {
	n := 0
	_ = t.GetInEdges(label, dst, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// GetOutDegree sums live out-degree over every node.
func (t *Tree) GetOutDegree(label string, src uint32) int {
	n := 0
	_ = t.GetOutEdges(label, src, func(edgerec.MemoryEdge) bool { n++; return true })
	return n
}

// GetBothEdges unions GetInEdges and GetOutEdges.
func (t *Tree) GetBothEdges(label string, vid uint32, add func(edgerec.MemoryEdge) bool) error {
	if err := t.GetOutEdges(label, vid, add); err != nil {
		return err
	}

	return t.GetInEdges(label, vid, add)
}

// DeleteVertex tombstones vid across every node (broadcast, since vid may
// appear as either endpoint anywhere in the tree).
func (t *Tree) DeleteVertex(vid uint32) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, n := range t.all() {
		k, err := n.ep.DeleteVertex(vid)
		if err != nil {
			return total, err
		}
		total += k
	}

	return total, nil
}

func (t *Tree) all() []*node {
	var out []*node
	var walk func(n *node)
	walk = func(n *node) {
		out = append(out, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)

	return out
}

// Root returns the tree's root EdgePartition, for compaction drivers that
// need to drain its MemTables.
func (t *Tree) Root() *edgepartition.EdgePartition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.ep
}

// AllNodes returns every node's EdgePartition paired with its id, for
// compaction sweeps that need to check IsNeedCompact across the whole
// tree.
func (t *Tree) AllNodes() map[int]*edgepartition.EdgePartition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[int]*edgepartition.EdgePartition, len(t.byID))
	for id, n := range t.byID {
		out[id] = n.ep
	}

	return out
}

// AllocChildDir returns a fresh sequential directory name for a Split
// compaction's i'th child of leaf (identified by its node id), tagged for
// the label being split so it lands at the same path openLabels will use
// once the child node is attached, and the new child's tree-wide node id.
func (t *Tree) AllocChildDir(leafID int, tag uint8, seq int) (dir string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id = t.nextID
	t.nextID++
	leaf := t.byID[leafID]

	return t.partitionDir(id, leaf.iv, tag), id
}

// AttachChild registers a newly split child under leafID, reopening its
// SubEdgePartitions (one per label) from the directory the compaction
// engine already wrote, and rewrites the intervals file.
func (t *Tree) AttachChild(leafID int, childID int, iv interval.Interval) error {
	if err := func() error {
		t.mu.Lock()
		defer t.mu.Unlock()

		parent, ok := t.byID[leafID]
		if !ok {
			return fmt.Errorf("shardtree: attach child: unknown parent %d: %w", leafID, skgerrors.ErrInvalidArgument)
		}

		n := newNode(childID, iv, parent)
		if err := t.openLabels(n); err != nil {
			return err
		}
		parent.addChild(n)
		t.byID[childID] = n

		return nil
	}(); err != nil {
		return err
	}

	return t.Save()
}

// Close releases every node's EdgePartition handles.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for _, n := range t.all() {
		if err := n.ep.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func errIsNotExist(err error) bool {
	return errors.Is(err, skgerrors.ErrNotExist)
}

// Leaves returns the node ids with no children, the set a compaction sweep
// must check for split candidates.
func (t *Tree) Leaves() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []int
	for _, n := range t.all() {
		if len(n.children) == 0 {
			out = append(out, n.id)
		}
	}

	return out
}

// Interior returns the node ids with at least one child, the set a
// compaction sweep checks for level-compaction candidates.
func (t *Tree) Interior() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []int
	for _, n := range t.all() {
		if len(n.children) > 0 {
			out = append(out, n.id)
		}
	}

	return out
}

// ChildIDs returns nodeID's direct children, in no particular order.
func (t *Tree) ChildIDs(nodeID int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[nodeID]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c.id)
	}

	return out
}

// SubPartition returns nodeID's label SubEdgePartition, for a compaction
// driver that already knows which node and label needs draining.
func (t *Tree) SubPartition(nodeID int, label string) (*subpartition.SubEdgePartition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[nodeID]
	if !ok {
		return nil, false
	}

	return n.ep.Get(label)
}

// Interval returns nodeID's vertex-id range.
func (t *Tree) Interval(nodeID int) (interval.Interval, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[nodeID]
	if !ok {
		return interval.Interval{}, false
	}

	return n.iv, true
}

// AddLabel registers a newly declared edge label's schema across every
// existing node, opening its SubEdgePartition (empty, since the label has
// no edges yet) at each one. Callers are responsible for persisting the
// schema change to the label registry's own backing file.
func (t *Tree) AddLabel(meta schema.MetaAttributes) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.registry.Register(meta)
	for _, n := range t.all() {
		sc := meta
		dir := t.partitionDir(n.id, n.iv, sc.Tag)
		opts := t.opts.Leaf
		if n.id == 0 {
			opts = t.opts.Root
		}
		sp, err := subpartition.Open(dir, &sc, n.iv, opts)
		if err != nil {
			return fmt.Errorf("shardtree: add label %s at node %d: %w", meta.Label, n.id, err)
		}
		n.ep.Put(sc.Label, sp)
	}

	return nil
}

// CreateEdgeAttrCol adds desc to label's schema at every node currently
// holding that label.
func (t *Tree) CreateEdgeAttrCol(label string, desc schema.ColumnDescriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.all() {
		sp, ok := n.ep.Get(label)
		if !ok {
			continue
		}
		if err := sp.CreateEdgeAttrCol(desc); err != nil {
			return fmt.Errorf("shardtree: create attr col %s.%s at node %d: %w", label, desc.Name, n.id, err)
		}
	}

	return nil
}

// DeleteEdgeAttrCol removes colName from label's schema at every node
// currently holding that label.
func (t *Tree) DeleteEdgeAttrCol(label, colName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.all() {
		sp, ok := n.ep.Get(label)
		if !ok {
			continue
		}
		if err := sp.DeleteEdgeAttrCol(colName); err != nil {
			return fmt.Errorf("shardtree: delete attr col %s.%s at node %d: %w", label, colName, n.id, err)
		}
	}

	return nil
}

// Labels returns every label registered at nodeID.
func (t *Tree) Labels(nodeID int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[nodeID]
	if !ok {
		return nil
	}
	sps := n.ep.All()
	out := make([]string, 0, len(sps))
	for _, sp := range sps {
		out = append(out, sp.Schema().Label)
	}

	return out
}
