// Package blockcache implements the process-wide LRU block cache backing
// the "Blocks" column-partition variant. Capacity is expressed in
// entries, derived from a configured megabyte budget divided by the
// fixed block size.
package blockcache

import (
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// blockKey identifies one block within one column file.
type blockKey struct {
	path  string
	index int64
}

type block struct {
	data  []byte
	dirty bool
}

// Cache is a single process-wide LRU over fixed-size blocks. Eviction
// flushes a dirty block synchronously before dropping it.
//
// Cache additionally tracks, per Interval, the set of block keys written
// under it so flush_interval(I) (used by compaction to make on-disk state
// consistent before a rewrite) can target exactly the blocks that belong
// to that SubEdgePartition without scanning the whole cache.
type Cache struct {
	mu         sync.Mutex
	blockSize  int
	lru        *lru.Cache[blockKey, *block]
	files      map[string]*os.File
	byInterval map[interval.Interval]map[blockKey]struct{}
}

// New creates a Cache sized to hold budgetMB megabytes worth of blockSize
// byte blocks: capacity in entries = budget_mb * 1MB / block_size.
func New(budgetMB int, blockSize int) (*Cache, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockcache: block size must be positive: %w", skgerrors.ErrInvalidArgument)
	}
	capacity := (budgetMB * 1024 * 1024) / blockSize
	if capacity < 1 {
		capacity = 1
	}

	c := &Cache{
		blockSize:  blockSize,
		files:      make(map[string]*os.File),
		byInterval: make(map[interval.Interval]map[blockKey]struct{}),
	}

	evicted, err := lru.NewWithEvict[blockKey, *block](capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("blockcache: new lru: %w", err)
	}
	c.lru = evicted

	return c, nil
}

func (c *Cache) onEvict(key blockKey, b *block) {
	if b.dirty {
		_ = c.writeThrough(key, b)
	}
}

func (c *Cache) fileFor(path string) (*os.File, error) {
	if f, ok := c.files[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockcache: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	c.files[path] = f

	return f, nil
}

func (c *Cache) writeThrough(key blockKey, b *block) error {
	f, err := c.fileFor(key.path)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(b.data, key.index*int64(c.blockSize)); err != nil {
		return fmt.Errorf("blockcache: write %s block %d: %w: %v", key.path, key.index, skgerrors.ErrIOError, err)
	}
	b.dirty = false

	return nil
}

func (c *Cache) load(key blockKey) (*block, error) {
	f, err := c.fileFor(key.path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, c.blockSize)
	n, err := f.ReadAt(buf, key.index*int64(c.blockSize))
	if err != nil && n == 0 {
		// Short/absent read past EOF is a legal hole: treat as zeroed block.
		buf = make([]byte, c.blockSize)
	}

	return &block{data: buf}, nil
}

// Read copies the bytes at [offset, offset+len(out)) into out, faulting in
// whichever blocks the range spans.
func (c *Cache) Read(iv interval.Interval, path string, offset int64, out []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := out
	pos := offset
	for len(remaining) > 0 {
		blkIdx := pos / int64(c.blockSize)
		blkOff := pos % int64(c.blockSize)
		n := int64(c.blockSize) - blkOff
		if n > int64(len(remaining)) {
			n = int64(len(remaining))
		}

		b, err := c.fetch(iv, blockKey{path: path, index: blkIdx})
		if err != nil {
			return err
		}
		copy(remaining[:n], b.data[blkOff:blkOff+n])

		remaining = remaining[n:]
		pos += n
	}

	return nil
}

// Write copies in into the cached blocks spanning [offset, offset+len(in)),
// marking them dirty.
func (c *Cache) Write(iv interval.Interval, path string, offset int64, in []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := in
	pos := offset
	for len(remaining) > 0 {
		blkIdx := pos / int64(c.blockSize)
		blkOff := pos % int64(c.blockSize)
		n := int64(c.blockSize) - blkOff
		if n > int64(len(remaining)) {
			n = int64(len(remaining))
		}

		key := blockKey{path: path, index: blkIdx}
		b, err := c.fetch(iv, key)
		if err != nil {
			return err
		}
		copy(b.data[blkOff:blkOff+n], remaining[:n])
		b.dirty = true
		c.lru.Add(key, b)

		remaining = remaining[n:]
		pos += n
	}

	return nil
}

func (c *Cache) fetch(iv interval.Interval, key blockKey) (*block, error) {
	if b, ok := c.lru.Get(key); ok {
		return b, nil
	}
	b, err := c.load(key)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, b)
	if c.byInterval[iv] == nil {
		c.byInterval[iv] = make(map[blockKey]struct{})
	}
	c.byInterval[iv][key] = struct{}{}

	return b, nil
}

// FlushInterval writes back every dirty block recorded under iv, used by
// SubEdgePartition compaction to make on-disk state consistent before a
// rewrite.
func (c *Cache) FlushInterval(iv interval.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byInterval[iv] {
		b, ok := c.lru.Peek(key)
		if !ok || !b.dirty {
			continue
		}
		if err := c.writeThrough(key, b); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes every dirty block and releases all open file handles.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.lru.Keys() {
		if b, ok := c.lru.Peek(key); ok && b.dirty {
			if err := c.writeThrough(key, b); err != nil {
				return err
			}
		}
	}
	for _, f := range c.files {
		if err := f.Close(); err != nil {
			return fmt.Errorf("blockcache: close: %w: %v", skgerrors.ErrIOError, err)
		}
	}

	return nil
}
