package subpartition_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/subpartition"
)

func knowsSchema() *schema.MetaAttributes {
	return &schema.MetaAttributes{
		Label: "knows", Tag: 1,
		Cols: []schema.ColumnDescriptor{
			{Name: "since", Type: schema.ColumnTypeFixedBytes, ID: 0, ValueSize: 4, OffsetWithinRow: 0},
		},
	}
}

func rootOpts() subpartition.Options {
	return subpartition.Options{
		Backend: elist.BackendMmap, ColumnKind: column.KindFileMmap,
		WithMemtable: true, MemKind: memtable.KindVec, MemBufferMB: 64,
		Log: zap.NewNop(),
	}
}

func TestAddEdge_RequiresMemtable(t *testing.T) {
	dir := t.TempDir()
	opts := rootOpts()
	opts.WithMemtable = false
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), opts)
	require.NoError(t, err)
	defer p.Close()

	err = p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1})
	assert.ErrorIs(t, err, skgerrors.ErrInvalidArgument)
}

func TestMergeEdgesAndFlush_PersistsMemtableRows(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 50, Tag: 1,
		Props: []memtable.PropertyValue{{Name: "since", Value: []byte{1, 0, 0, 0}}}}))
	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 2, Dst: 50, Tag: 1}))

	buffered, iv := p.Memtable().ExtractAll()
	require.Len(t, buffered, 2)
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	rows, err := p.LoadAllEdges()
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var out []edgerec.MemoryEdge
	require.NoError(t, p.GetOutEdges(1, func(e edgerec.MemoryEdge) bool { out = append(out, e); return true }))
	require.Len(t, out, 1)
	assert.Equal(t, byte(1), out[0].FixedProps[0])

	assert.Equal(t, 2, p.GetInDegree(50))
}

func TestDeleteEdge_OnDiskTombstone(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	require.NoError(t, p.DeleteEdge(1, 2, 1))
	_, err = p.GetEdgeAttributes(1, 2, 1)
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)

	rows, err := p.LoadAllEdges()
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

func TestDeleteVertex_TombstonesOutAndIn(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 2, Dst: 3, Tag: 1}))
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	n, err := p.DeleteVertex(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := p.LoadAllEdges()
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

// Every live row's ordinal must fall inside the half-open range the
// src-index computes for its own Src, and GetOutEdges must return exactly
// that row set with no extras and no omissions.
func TestGetOutEdges_MatchesSrcIndexRangeExactly(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	for _, e := range []struct{ src, dst uint32 }{{1, 10}, {1, 20}, {2, 30}, {1, 40}, {3, 50}} {
		require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: e.src, Dst: e.dst, Tag: 1}))
	}
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	all, err := p.LoadAllEdges()
	require.NoError(t, err)
	bySrc := make(map[uint32]int)
	for _, row := range all {
		bySrc[row.Src]++
	}

	for src, wantCount := range bySrc {
		var got []edgerec.MemoryEdge
		require.NoError(t, p.GetOutEdges(src, func(e edgerec.MemoryEdge) bool { got = append(got, e); return true }))
		assert.Len(t, got, wantCount)
		for _, row := range got {
			assert.Equal(t, src, row.Src)
		}
	}
}

// The dst-index chain walk must terminate in a finite number of steps and
// visit exactly the live in-edges to dst, skipping any tombstoned row on
// the same chain.
func TestGetInEdges_ChainWalkTerminatesOnLiveRowsOnly(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 99, Tag: 1}))
	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 2, Dst: 99, Tag: 1}))
	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 3, Dst: 99, Tag: 1}))
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))
	require.NoError(t, p.DeleteEdge(2, 99, 1))

	done := make(chan []edgerec.MemoryEdge, 1)
	go func() {
		var got []edgerec.MemoryEdge
		_ = p.GetInEdges(99, func(e edgerec.MemoryEdge) bool { got = append(got, e); return true })
		done <- got
	}()

	select {
	case got := <-done:
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []uint32{1, 3}, []uint32{got[0].Src, got[1].Src})
	case <-time.After(5 * time.Second):
		t.Fatal("dst chain walk did not terminate")
	}
}

// SetEdgeAttributes applied twice with the same values must not create a
// second row and must leave the edge's attributes identical to the first
// application.
func TestSetEdgeAttributes_Idempotent(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	spec := memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1,
		Props: []memtable.PropertyValue{{Name: "since", Value: []byte{7, 0, 0, 0}}}}
	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: 2, Tag: 1}))
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	require.NoError(t, p.SetEdgeAttributes(spec))
	first, err := p.GetEdgeAttributes(1, 2, 1)
	require.NoError(t, err)

	require.NoError(t, p.SetEdgeAttributes(spec))
	second, err := p.GetEdgeAttributes(1, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, first.FixedProps, second.FixedProps)
	assert.Equal(t, first.Weight, second.Weight)

	rows, err := p.LoadAllEdges()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// Deleting a flushed edge tombstones its on-disk row without removing it:
// reads hide the row immediately, but the row count on disk is unchanged
// until a compaction pass actually rewrites the file.
func TestScenario_TombstoneSurvivesWithoutCompaction(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 3, Dst: 4, Tag: 1}))
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	require.NoError(t, p.DeleteEdge(3, 4, 1))

	var out []edgerec.MemoryEdge
	require.NoError(t, p.GetOutEdges(3, func(e edgerec.MemoryEdge) bool { out = append(out, e); return true }))
	assert.Empty(t, out)

	el, err := elist.Open(filepath.Join(dir, "elist"), elist.BackendMmap, false, false)
	require.NoError(t, err)
	defer el.Close()
	assert.Equal(t, 1, el.NumEdges())
	row, err := el.Get(0)
	require.NoError(t, err)
	assert.True(t, row.Tombstoned())
}

func TestIsNeedCompact(t *testing.T) {
	dir := t.TempDir()
	p, err := subpartition.Open(dir, knowsSchema(), interval.New(1, 100), rootOpts())
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.IsNeedCompact(16, 4))

	for i := 0; i < 1000; i++ {
		require.NoError(t, p.AddEdge(memtable.EdgeSpec{Src: 1, Dst: uint32(2 + i%90), Tag: 1}))
	}
	buffered, iv := p.Memtable().ExtractAll()
	require.NoError(t, p.MergeEdgesAndFlush(buffered, iv))

	// Threshold is zero (0MB shard budget), so any on-disk rows trip it.
	assert.True(t, p.IsNeedCompact(0, 0))
}
