package schema_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qksidmx/skgraph/schema"
)

func knowsSchema() schema.MetaAttributes {
	return schema.MetaAttributes{
		Label:      "knows",
		Tag:        1,
		SrcLabel:   "person",
		SrcTag:     1,
		DstLabel:   "person",
		DstTag:     1,
		IsWeighted: true,
		Cols: []schema.ColumnDescriptor{
			{Name: "since", Type: schema.ColumnTypeTime, ID: 0, ValueSize: 8, FixedLength: true},
			{Name: "note", Type: schema.ColumnTypeFixedBytes, ID: 1, ValueSize: 8, FixedLength: true},
		},
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := schema.NewRegistry()
	reg.Register(knowsSchema())

	m, ok := reg.ByLabel("knows")
	require.True(t, ok)
	assert.Equal(t, uint8(1), m.Tag)

	m2, ok := reg.ByTag(1)
	require.True(t, ok)
	assert.Equal(t, "knows", m2.Label)

	col, ok := m.Column("since")
	require.True(t, ok)
	assert.Equal(t, 8, col.RowWidth())

	assert.Equal(t, 16, m.FixedBytesLen())
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.attr.cnf")

	reg := schema.NewRegistry()
	reg.Register(knowsSchema())
	require.NoError(t, reg.Save(path))

	loaded, err := schema.Load(path)
	require.NoError(t, err)

	m, ok := loaded.ByLabel("knows")
	require.True(t, ok)
	assert.True(t, m.IsWeighted)
	assert.Len(t, m.Cols, 2)
}

func TestLoad_MissingFileReturnsEmptyRegistry(t *testing.T) {
	reg, err := schema.Load(filepath.Join(t.TempDir(), "does-not-exist.cnf"))
	require.NoError(t, err)
	assert.Empty(t, reg.All())
}
