package shardtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/compaction"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/shardtree"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/subpartition"
)

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.Register(schema.MetaAttributes{Label: "knows", Tag: 1, IsWeighted: true})
	reg.Register(schema.MetaAttributes{Label: "likes", Tag: 2})
	return reg
}

func testOptions() shardtree.Options {
	base := subpartition.Options{
		Backend: elist.BackendMmap, ColumnKind: column.KindFileMmap,
		MemKind: memtable.KindVec, MemBufferMB: 64, Log: zap.NewNop(),
	}
	leaf := base
	leaf.WithMemtable = false
	root := base
	root.WithMemtable = true
	return shardtree.Options{Root: root, Leaf: leaf}
}

func TestOpen_CreatesRootWithBothLabels(t *testing.T) {
	dir := t.TempDir()
	tree, err := shardtree.Open(dir, testRegistry(), testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()

	require.NoError(t, tree.AddEdge("knows", memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))

	row, err := tree.GetEdgeAttributes("knows", 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), row.Dst)

	_, err = tree.GetEdgeAttributes("likes", 1, 2, 2)
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)
}

func TestGetOutEdges_BroadcastsAcrossLabels(t *testing.T) {
	dir := t.TempDir()
	tree, err := shardtree.Open(dir, testRegistry(), testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()

	require.NoError(t, tree.AddEdge("knows", memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, tree.AddEdge("likes", memtable.EdgeSpec{Src: 1, Dst: 3, Tag: 2}))

	var out []edgerec.MemoryEdge
	require.NoError(t, tree.GetOutEdges("", 1, func(e edgerec.MemoryEdge) bool { out = append(out, e); return true }))
	assert.Len(t, out, 2)
}

func TestSave_PersistsRootRecord(t *testing.T) {
	dir := t.TempDir()
	tree, err := shardtree.Open(dir, testRegistry(), testOptions(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tree.AddEdge("knows", memtable.EdgeSpec{Src: 1, Dst: 5, Tag: 1}))
	require.NoError(t, tree.Save())
	require.NoError(t, tree.Close())

	reopened, err := shardtree.Open(dir, testRegistry(), testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.GetEdgeAttributes("knows", 1, 5, 1)
	assert.NoError(t, err)
}

// An oversized root partition splits into split_factor children whose
// intervals partition the root's pre-split range, and every edge survives
// the split (broadcast reads still find it afterward).
func TestScenario_SplitCompactionGrowsTreeIntoSplitFactorChildren(t *testing.T) {
	dir := t.TempDir()
	reg := schema.NewRegistry()
	reg.Register(schema.MetaAttributes{Label: "knows", Tag: 1})
	tree, err := shardtree.Open(dir, reg, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()

	const numEdges = 5000
	for dst := 1; dst <= numEdges; dst++ {
		require.NoError(t, tree.AddEdge("knows", memtable.EdgeSpec{Src: 1, Dst: uint32(dst), Tag: 1}))
	}

	rootSP, ok := tree.SubPartition(0, "knows")
	require.True(t, ok)
	require.NoError(t, compaction.MemoryTableCompaction(rootSP))
	require.True(t, rootSP.IsNeedCompact(1, 4), "root must exceed a 1MB/split_factor=4 budget with 5000 rows")

	leafInterval := rootSP.Interval()
	const splitFactor = 4
	specs, err := compaction.SplitCompaction(rootSP, splitFactor,
		func(seq int) (string, int) { return tree.AllocChildDir(0, 1, seq) },
		func(childDir string) (*subpartition.SubEdgePartition, error) {
			sp, err := subpartition.Open(childDir, rootSP.Schema(), rootSP.Interval(), rootSP.ChildOptions())
			if err != nil {
				return nil, err
			}
			return nil, sp.Close()
		})
	require.NoError(t, err)
	require.Len(t, specs, splitFactor)

	for _, spec := range specs {
		require.NoError(t, tree.AttachChild(0, spec.ID, spec.Interval))
	}

	childIDs := tree.ChildIDs(0)
	require.Len(t, childIDs, splitFactor)

	assert.Equal(t, leafInterval.First, specs[0].Interval.First)
	assert.Equal(t, leafInterval.Second, specs[len(specs)-1].Interval.Second)
	for i := 1; i < len(specs); i++ {
		assert.False(t, specs[i-1].Interval.Overlaps(specs[i].Interval))
		assert.Equal(t, specs[i-1].Interval.Second+1, specs[i].Interval.First)
	}

	var out []edgerec.MemoryEdge
	require.NoError(t, tree.GetOutEdges("knows", 1, func(e edgerec.MemoryEdge) bool { out = append(out, e); return true }))
	assert.Len(t, out, numEdges)
}

func TestDeleteVertex_BroadcastsAcrossTree(t *testing.T) {
	dir := t.TempDir()
	tree, err := shardtree.Open(dir, testRegistry(), testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()

	require.NoError(t, tree.AddEdge("knows", memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, tree.AddEdge("likes", memtable.EdgeSpec{Src: 1, Dst: 3, Tag: 2}))

	n, err := tree.DeleteVertex(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
