package skgoptions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/skgoptions"
)

func TestApply_Defaults(t *testing.T) {
	cfg := skgoptions.Apply()
	assert.Equal(t, 64, cfg.MemBufferMB)
	assert.Equal(t, elist.BackendMmap, cfg.ElistBackend)
	assert.NotNil(t, cfg.Log)
}

func TestApply_LaterOptionsOverrideEarlier(t *testing.T) {
	cfg := skgoptions.Apply(
		skgoptions.WithMemBufferMB(32),
		skgoptions.WithMemBufferMB(128),
	)
	assert.Equal(t, 128, cfg.MemBufferMB)
}

func TestApply_IgnoresInvalidValues(t *testing.T) {
	cfg := skgoptions.Apply(
		skgoptions.WithMemBufferMB(-1),
		skgoptions.WithShardSplitFactor(1),
	)
	assert.Equal(t, 64, cfg.MemBufferMB)
	assert.Equal(t, 4, cfg.ShardSplitFactor)
}

func TestApply_RawReadOverridesMmap(t *testing.T) {
	cfg := skgoptions.Apply(skgoptions.WithRawRead())
	assert.Equal(t, elist.BackendRaw, cfg.ElistBackend)
}

func TestApply_MemTableKind(t *testing.T) {
	cfg := skgoptions.Apply(skgoptions.WithMemTableKind(memtable.KindHash))
	assert.Equal(t, memtable.KindHash, cfg.MemTableKind)
}
