package vertexstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qksidmx/skgraph/vertexstore"
)

func TestDenseFileStore_SetThenGet(t *testing.T) {
	dir := t.TempDir()
	s := vertexstore.NewDenseFileStore(dir, "person")
	require.NoError(t, s.DeclareColumn("age", 4, 8))
	defer s.Close()

	require.NoError(t, s.Set(3, "age", []byte{30, 0, 0, 0}))

	val, found, err := s.Get(3, "age")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{30, 0, 0, 0}, val)
}

func TestDenseFileStore_UnsetVidNotFound(t *testing.T) {
	dir := t.TempDir()
	s := vertexstore.NewDenseFileStore(dir, "person")
	require.NoError(t, s.DeclareColumn("age", 4, 8))
	defer s.Close()

	_, found, err := s.Get(5, "age")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDenseFileStore_SetGrowsPastInitialCapacity(t *testing.T) {
	dir := t.TempDir()
	s := vertexstore.NewDenseFileStore(dir, "person")
	require.NoError(t, s.DeclareColumn("age", 4, 2))
	defer s.Close()

	require.NoError(t, s.Set(50, "age", []byte{1, 2, 3, 4}))
	val, found, err := s.Get(50, "age")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{1, 2, 3, 4}, val)
}
