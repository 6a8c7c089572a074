// Package skgoptions provides functional options for configuring an open
// database: buffer sizes, storage variant selection, and the logger every
// other package receives. Apply any number of Option values in order;
// later options override earlier ones.
//
// Complexity: Apply runs N options in O(N) time, O(1) extra space.
package skgoptions

import (
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/elist"
	"github.com/Qksidmx/skgraph/memtable"
)

// Config holds every tunable the engine reads at open time.
type Config struct {
	MemBufferMB      int
	MemTableKind     memtable.Kind
	ShardSizeMB      int
	ShardSplitFactor int
	EdataCacheMB     int
	ElistBackend     elist.Backend
	ColumnKind       column.Kind
	BlockSizeBytes   int
	MmapPopulate     bool
	MmapLocked       bool
	MaxIntervalLen   uint64
	Log              *zap.Logger
}

// Option customizes a Config before an engine opens.
type Option func(*Config)

// defaults mirror the values a fresh single-machine deployment should use:
// a 64MB write buffer, mmap-backed reads, a 256MB block cache.
func defaults() *Config {
	return &Config{
		MemBufferMB:      64,
		MemTableKind:     memtable.KindVec,
		ShardSizeMB:      256,
		ShardSplitFactor: 4,
		EdataCacheMB:     256,
		ElistBackend:     elist.BackendMmap,
		ColumnKind:       column.KindFileMmap,
		BlockSizeBytes:   4096,
		MmapPopulate:     false,
		MmapLocked:       false,
		MaxIntervalLen:   0, // 0 means unbounded
		Log:              zap.NewNop(),
	}
}

// Apply builds a Config from defaults, then applies every opt in order.
// Clamped values are logged through whichever logger is active at the
// point of the clamp, so pass WithLogger first if its debug output matters.
func Apply(opts ...Option) *Config {
	cfg := defaults()
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithMemBufferMB sets the MemTable flush threshold in megabytes.
// Values <= 0 are ignored (keep the default).
//
// Complexity: O(1) time, O(1) space.
func WithMemBufferMB(mb int) Option {
	return func(c *Config) {
		if mb > 0 {
			c.MemBufferMB = mb
			return
		}
		c.Log.Debug("skgoptions: ignoring non-positive mem_buffer_mb, keeping default", zap.Int("value", mb), zap.Int("default", c.MemBufferMB))
	}
}

// WithMemTableKind selects the MemTable backend (Vec or Hash).
//
// Complexity: O(1) time, O(1) space.
func WithMemTableKind(kind memtable.Kind) Option {
	return func(c *Config) { c.MemTableKind = kind }
}

// WithShardSizeMB sets the per-partition compaction threshold used by
// IsNeedCompact.
//
// Complexity: O(1) time, O(1) space.
func WithShardSizeMB(mb int) Option {
	return func(c *Config) {
		if mb > 0 {
			c.ShardSizeMB = mb
			return
		}
		c.Log.Debug("skgoptions: ignoring non-positive shard_size_mb, keeping current value", zap.Int("value", mb), zap.Int("current", c.ShardSizeMB))
	}
}

// WithShardSplitFactor sets the number of children a leaf splits into.
// Values below 2 are ignored; a split into fewer than two children is not
// a split.
//
// Complexity: O(1) time, O(1) space.
func WithShardSplitFactor(n int) Option {
	return func(c *Config) {
		if n >= 2 {
			c.ShardSplitFactor = n
			return
		}
		c.Log.Debug("skgoptions: ignoring shard_split_factor below 2, keeping current value", zap.Int("value", n), zap.Int("current", c.ShardSplitFactor))
	}
}

// WithEdataCacheMB sets the process-wide block cache budget used by the
// Blocks column-partition variant.
//
// Complexity: O(1) time, O(1) space.
func WithEdataCacheMB(mb int) Option {
	return func(c *Config) {
		if mb > 0 {
			c.EdataCacheMB = mb
			return
		}
		c.Log.Debug("skgoptions: ignoring non-positive edata_cache_mb, keeping current value", zap.Int("value", mb), zap.Int("current", c.EdataCacheMB))
	}
}

// WithMmapRead selects the mmap backend for the adjacency list and its
// indexes; WithRawRead selects raw pread/pwrite instead.
//
// Complexity: O(1) time, O(1) space.
func WithMmapRead() Option {
	return func(c *Config) { c.ElistBackend = elist.BackendMmap }
}

// WithRawRead selects the raw pread/pwrite elist backend, trading mmap's
// zero-copy reads for predictable memory use.
//
// Complexity: O(1) time, O(1) space.
func WithRawRead() Option {
	return func(c *Config) { c.ElistBackend = elist.BackendRaw }
}

// WithColumnKind selects the property-column storage variant.
//
// Complexity: O(1) time, O(1) space.
func WithColumnKind(kind column.Kind) Option {
	return func(c *Config) { c.ColumnKind = kind }
}

// WithBlockSizeBytes sets the Blocks column variant's block size. Values
// <= 0 are ignored.
//
// Complexity: O(1) time, O(1) space.
func WithBlockSizeBytes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.BlockSizeBytes = n
			return
		}
		c.Log.Debug("skgoptions: ignoring non-positive block_size_bytes, keeping current value", zap.Int("value", n), zap.Int("current", c.BlockSizeBytes))
	}
}

// WithMmapPopulate requests MAP_POPULATE on mmap backends, prefaulting
// pages at open time to trade startup latency for steady-state read
// latency.
//
// Complexity: O(1) time, O(1) space.
func WithMmapPopulate(populate bool) Option {
	return func(c *Config) { c.MmapPopulate = populate }
}

// WithMmapLocked requests the mapped pages be pinned resident via mlock
// (MAP_LOCKED equivalent), keeping them out of swap at the cost of
// consuming the process's locked-memory budget.
//
// Complexity: O(1) time, O(1) space.
func WithMmapLocked(locked bool) Option {
	return func(c *Config) { c.MmapLocked = locked }
}

// WithMaxIntervalLen stores n in Config.MaxIntervalLen (zero meaning
// unbounded). No other package reads that field, so it does not limit how
// far a partition interval grows and does not change when compaction runs.
//
// Complexity: O(1) time, O(1) space.
func WithMaxIntervalLen(n uint64) Option {
	return func(c *Config) { c.MaxIntervalLen = n }
}

// WithLogger overrides the zap.Logger passed down to every package. A nil
// logger is ignored.
//
// Complexity: O(1) time, O(1) space.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) {
		if log != nil {
			c.Log = log
		}
	}
}
