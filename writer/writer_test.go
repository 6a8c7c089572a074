package writer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/writer"
)

func sinceSchema() *schema.MetaAttributes {
	return &schema.MetaAttributes{
		Label: "knows", Tag: 1,
		Cols: []schema.ColumnDescriptor{
			{Name: "since", Type: schema.ColumnTypeFixedBytes, ID: 0, ValueSize: 4, OffsetWithinRow: 0},
		},
	}
}

func mmapOpener(path string, valueSize int) (column.Partition, error) {
	return column.OpenMmap(path, valueSize, false, false)
}

func TestWrite_SortsDedupesAndChains(t *testing.T) {
	dir := t.TempDir()
	edges := []edgerec.MemoryEdge{
		{Src: 2, Dst: 5, Tag: 1, FixedProps: []byte{1, 0, 0, 0}, PropertyBits: bitsOf(0)},
		{Src: 1, Dst: 5, Tag: 1, FixedProps: []byte{2, 0, 0, 0}, PropertyBits: bitsOf(0)},
		{Src: 1, Dst: 3, Tag: 1, FixedProps: []byte{3, 0, 0, 0}, PropertyBits: bitsOf(0)},
		// Duplicate (1,3,1): the later entry in input order must win.
		{Src: 1, Dst: 3, Tag: 1, FixedProps: []byte{9, 0, 0, 0}, PropertyBits: bitsOf(0)},
	}
	iv := interval.New(3, 5)

	res, err := writer.Write(dir, edges, iv, sinceSchema(), elist.BackendMmap, false, false, mmapOpener, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, res.NumEdges)

	el, err := elist.Open(filepath.Join(dir, "elist"), elist.BackendMmap, false, false)
	require.NoError(t, err)
	defer el.Close()
	require.Equal(t, 3, el.NumEdges())

	// Sorted by (src,dst): (1,3) dedup-wins value 9, (1,5) value 2, (2,5) value 1.
	row0, err := el.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), row0.Src)
	assert.Equal(t, uint32(3), row0.Dst)

	srcIdx, err := elist.OpenIndex(filepath.Join(dir, "elist.src.idx"))
	require.NoError(t, err)
	defer srcIdx.Close()
	ord, ok := srcIdx.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), ord)

	dstIdx, err := elist.OpenIndex(filepath.Join(dir, "elist.dst.idx"))
	require.NoError(t, err)
	defer dstIdx.Close()
	head, ok := dstIdx.Lookup(5)
	require.True(t, ok)
	tail, err := el.Get(int(head))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), tail.Dst)

	colFile, err := column.OpenMmap(filepath.Join(dir, "elist_col", "since"), 4, false, false)
	require.NoError(t, err)
	defer colFile.Close()
	out := make([]byte, 4)
	require.NoError(t, colFile.Get(0, out))
	assert.Equal(t, byte(9), out[0])
}

// Write's output must contain no duplicate (src,dst,tag) key among its live
// rows, regardless of how many duplicate input rows shared a key.
func TestWrite_NoDuplicateKeysAmongLiveRows(t *testing.T) {
	dir := t.TempDir()
	edges := []edgerec.MemoryEdge{
		{Src: 1, Dst: 2, Tag: 1, FixedProps: []byte{1, 0, 0, 0}, PropertyBits: bitsOf(0)},
		{Src: 1, Dst: 2, Tag: 1, FixedProps: []byte{2, 0, 0, 0}, PropertyBits: bitsOf(0)},
		{Src: 1, Dst: 2, Tag: 2, FixedProps: []byte{3, 0, 0, 0}, PropertyBits: bitsOf(0)}, // distinct tag, not a duplicate
		{Src: 1, Dst: 3, Tag: 1, FixedProps: []byte{4, 0, 0, 0}, PropertyBits: bitsOf(0)},
		{Src: 1, Dst: 3, Tag: 1, FixedProps: []byte{5, 0, 0, 0}, PropertyBits: bitsOf(0)},
	}
	iv := interval.New(2, 3)

	res, err := writer.Write(dir, edges, iv, sinceSchema(), elist.BackendMmap, false, false, mmapOpener, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, res.NumEdges)

	el, err := elist.Open(filepath.Join(dir, "elist"), elist.BackendMmap, false, false)
	require.NoError(t, err)
	defer el.Close()

	seen := make(map[edgerec.Key]bool)
	for i := 0; i < el.NumEdges(); i++ {
		row, err := el.Get(i)
		require.NoError(t, err)
		require.False(t, seen[row.Key()], "duplicate key %+v among live rows", row.Key())
		seen[row.Key()] = true
	}
	assert.Len(t, seen, 3)
}

func bitsOf(ids ...uint8) edgerec.PropertyBits {
	b := edgerec.NewPropertyBits()
	for _, id := range ids {
		_ = b.Set(id)
	}
	return b
}
