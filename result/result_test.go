package result_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/result"
)

func TestEdgeSet_StopsAtLimit(t *testing.T) {
	s := result.NewEdgeSet(2)
	assert.True(t, s.Add(edgerec.MemoryEdge{Dst: 1}))
	assert.False(t, s.Add(edgerec.MemoryEdge{Dst: 2}))
	assert.True(t, s.OverLimit)
	assert.Len(t, s.Rows, 2)
}

func TestEdgeSet_Unlimited(t *testing.T) {
	s := result.NewEdgeSet(0)
	for i := 0; i < 100; i++ {
		assert.True(t, s.Add(edgerec.MemoryEdge{Dst: uint32(i)}))
	}
	assert.False(t, s.OverLimit)
	assert.Len(t, s.Rows, 100)
}

func TestVertexSet_DedupesAndStopsAtLimit(t *testing.T) {
	s := result.NewVertexSet(2)
	assert.True(t, s.Add(1))
	assert.True(t, s.Add(1))
	assert.Len(t, s.IDs, 1)
	assert.False(t, s.Add(2))
	assert.False(t, s.Add(3))
	assert.True(t, s.OverLimit)
}
