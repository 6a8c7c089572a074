package skg_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skg"
	"github.com/Qksidmx/skgraph/skgerrors"
	"github.com/Qksidmx/skgraph/skgoptions"
)

func openTestDB(t *testing.T, opts ...skgoptions.Option) *skg.Handle {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	h, err := skg.Open(dir, opts...)
	require.NoError(t, err)
	require.NoError(t, h.CreateEdgeLabel("knows", 1, 1, 1))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestCreate_RejectsExistingDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, skg.Create(dir))
	err := skg.Create(dir)
	assert.ErrorIs(t, err, skgerrors.ErrInvalidArgument)
}

func TestHandle_AddAndGetEdgeAttributes(t *testing.T) {
	h := openTestDB(t)

	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.5}))

	got, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.Src)
	assert.Equal(t, uint32(2), got.Dst)
	assert.Equal(t, float32(0.5), got.Weight)
}

func TestHandle_AddEdge_RejectsSelfLoop(t *testing.T) {
	h := openTestDB(t)

	err := h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 1, Tag: 1})
	assert.ErrorIs(t, err, skgerrors.ErrUnsupportedSelfLoop)
}

func TestHandle_SetEdgeAttributes_CreateIfNotExist(t *testing.T) {
	h := openTestDB(t)

	err := h.SetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 1})
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)

	require.NoError(t, h.SetEdgeAttributes(request.EdgeRequest{
		Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 1, CreateIfNotExist: true,
	}))

	got, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Weight)
}

func TestHandle_DeleteEdge(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))

	require.NoError(t, h.DeleteEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))

	_, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)
}

func TestHandle_GetInOutBothEdges(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 3, Dst: 1, Tag: 1}))

	out, err := h.GetOutEdges(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, uint32(2), out.Rows[0].Dst)

	in, err := h.GetInEdges(request.EdgeRequest{Label: "knows", Dst: 1})
	require.NoError(t, err)
	require.Len(t, in.Rows, 1)
	assert.Equal(t, uint32(3), in.Rows[0].Src)

	both, err := h.GetBothEdges(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.Len(t, both.Rows, 2)
}

func TestHandle_GetInOutVerticesAndDegree(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 3, Tag: 1}))

	out, err := h.GetOutVertices(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, out.IDs)

	degree, err := h.GetOutDegree(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), degree)
}

func TestHandle_CreateAndDeleteEdgeAttrCol(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.CreateEdgeAttrCol("knows", schema.ColumnDescriptor{
		Name: "since", Type: schema.ColumnTypeInt32, ID: 0, ValueSize: 4,
	}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{
		Label: "knows", Src: 1, Dst: 2, Tag: 1,
	}))

	require.NoError(t, h.DeleteEdgeAttrCol("knows", "since"))
}

func TestHandle_FlushDrainsMemtable(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.Flush())

	got, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.Dst)
}

// add_edge followed by get_edge_attributes must round-trip weight and tag
// exactly, and the returned PropertyBits must mark declared-and-supplied
// columns present while leaving declared-but-unsupplied columns null.
func TestProperty_AddThenGetRoundTripsAttributesAndNullBits(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.CreateEdgeAttrCol("knows", schema.ColumnDescriptor{
		Name: "since", Type: schema.ColumnTypeFixedBytes, ID: 1, ValueSize: 4, OffsetWithinRow: 0,
	}))
	require.NoError(t, h.CreateEdgeAttrCol("knows", schema.ColumnDescriptor{
		Name: "note", Type: schema.ColumnTypeFixedBytes, ID: 2, ValueSize: 4, OffsetWithinRow: 4,
	}))

	require.NoError(t, h.AddEdge(request.EdgeRequest{
		Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.75,
		Props: []memtable.PropertyValue{{Name: "since", Value: []byte{9, 9, 9, 9}}},
	}))

	got, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), got.Weight)
	assert.True(t, got.PropertyBits.Test(1))
	assert.False(t, got.PropertyBits.Test(2))
}

// delete_edge followed by get_edge_attributes must report ErrNotExist, both
// immediately and after a Flush forces the delete's target onto disk.
func TestProperty_DeleteThenGet_ReturnsNotExist(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.Flush())

	require.NoError(t, h.DeleteEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))

	_, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)
	require.NoError(t, h.Flush())
	_, err = h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	assert.ErrorIs(t, err, skgerrors.ErrNotExist)
}

// SetEdgeAttributes applied twice with identical values must be idempotent:
// the edge's attributes and the vertex's degree must not change between
// applications.
func TestProperty_SetEdgeAttributesIsIdempotent(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))

	req := request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 2.5}
	require.NoError(t, h.SetEdgeAttributes(req))
	first, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)

	require.NoError(t, h.SetEdgeAttributes(req))
	second, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)

	assert.Equal(t, first.Weight, second.Weight)
	degree, err := h.GetOutDegree(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), degree)
}

// get_out_edges(v) for a vertex untouched by a later write must return the
// same rows before and after a compaction sweep triggered by unrelated
// writes to other vertices.
func TestProperty_OutEdgesStableAcrossUnrelatedCompaction(t *testing.T) {
	h := openTestDB(t, skgoptions.WithShardSizeMB(1), skgoptions.WithShardSplitFactor(4))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.5}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 3, Tag: 1, Weight: 0.25}))
	require.NoError(t, h.Flush())

	before, err := h.GetOutEdges(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	require.Len(t, before.Rows, 2)

	for dst := uint32(1000); dst < 6000; dst++ {
		require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 99, Dst: dst, Tag: 1}))
	}
	require.NoError(t, h.Flush())

	after, err := h.GetOutEdges(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, before.Rows, after.Rows)
}

func TestScenario_RoundTripKnowsEdgeWithSinceColumn(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.CreateEdgeAttrCol("knows", schema.ColumnDescriptor{
		Name: "since", Type: schema.ColumnTypeFixedBytes, ID: 1, ValueSize: 8, OffsetWithinRow: 0,
	}))
	since := []byte("20200101")

	require.NoError(t, h.AddEdge(request.EdgeRequest{
		Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.5,
		Props: []memtable.PropertyValue{{Name: "since", Value: since}},
	}))

	out, err := h.GetOutEdges(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, float32(0.5), out.Rows[0].Weight)
	assert.Equal(t, since, out.Rows[0].FixedProps[:8])

	in, err := h.GetInEdges(request.EdgeRequest{Label: "knows", Dst: 2})
	require.NoError(t, err)
	require.Len(t, in.Rows, 1)
	assert.Equal(t, float32(0.5), in.Rows[0].Weight)
	assert.Equal(t, since, in.Rows[0].FixedProps[:8])
}

func TestScenario_DedupOnFlushKeepsLastWeight(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.1}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1, Weight: 0.2}))
	require.NoError(t, h.Flush())

	degree, err := h.GetOutDegree(request.EdgeRequest{Label: "knows", Src: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), degree)

	got, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, float32(0.2), got.Weight)
}

func TestScenario_IntervalContainmentRoutesFarDstToRoot(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 10, Dst: 999999, Tag: 1}))

	in, err := h.GetInEdges(request.EdgeRequest{Label: "knows", Dst: 999999})
	require.NoError(t, err)
	require.Len(t, in.Rows, 1)
	assert.Equal(t, uint32(10), in.Rows[0].Src)
}

// A declared FixedBytes column left unsupplied reads back null (its bit
// clear); the same column explicitly set to all-zero bytes reads back
// present (its bit set) with those zero bytes, and the two must not be
// conflated.
func TestScenario_PropertyNullIsDistinctFromZeroValue(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.CreateEdgeAttrCol("knows", schema.ColumnDescriptor{
		Name: "weight_at", Type: schema.ColumnTypeFixedBytes, ID: 1, ValueSize: 8, OffsetWithinRow: 0,
	}))

	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.AddEdge(request.EdgeRequest{
		Label: "knows", Src: 1, Dst: 3, Tag: 1,
		Props: []memtable.PropertyValue{{Name: "weight_at", Value: make([]byte, 8)}},
	}))

	unset, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.False(t, unset.PropertyBits.Test(1))

	zeroed, err := h.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 3, Tag: 1})
	require.NoError(t, err)
	assert.True(t, zeroed.PropertyBits.Test(1))
	assert.Equal(t, make([]byte, 8), zeroed.FixedProps[:8])
}

func TestHandle_CloseThenReopen_PersistsEdges(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	h, err := skg.Open(dir)
	require.NoError(t, err)
	require.NoError(t, h.CreateEdgeLabel("knows", 1, 1, 1))
	require.NoError(t, h.AddEdge(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1}))
	require.NoError(t, h.Flush())
	require.NoError(t, h.Close())

	reopened, err := skg.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetEdgeAttributes(request.EdgeRequest{Label: "knows", Src: 1, Dst: 2, Tag: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.Dst)
}
