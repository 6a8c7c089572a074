// Package column implements the property-column storage variants:
// mmapped file, mmapped column group, cached block file, and raw
// pread/pwrite file.
package column

import (
	"fmt"
	"os"
	"sync"

	mmapgo "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/Qksidmx/skgraph/blockcache"
	"github.com/Qksidmx/skgraph/interval"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// Kind tags the four storage variants, favoring a tagged union over an
// inheritance hierarchy.
type Kind int

const (
	KindFileMmap Kind = iota
	KindGroupMmap
	KindBlocks
	KindFileRaw
)

// Partition is the contract shared by all four storage variants.
type Partition interface {
	// Get copies the value at ordinal i into out, which must be at least
	// ValueSize() bytes.
	Get(i int, out []byte) error
	// Set writes value at ordinal i. If value is shorter than ValueSize(),
	// the row is zeroed first.
	Set(i int, value []byte) error
	ValueSize() int
	NumRows() int
	Flush() error
	Close() error
}

// boundsCheck validates i*valueSize+valueSize <= fileSize, returning
// ErrIOError on violation.
func boundsCheck(i, valueSize int, fileSize int64) error {
	need := int64(i)*int64(valueSize) + int64(valueSize)
	if need > fileSize {
		return fmt.Errorf("column: ordinal %d exceeds file size %d: %w", i, fileSize, skgerrors.ErrIOError)
	}
	if i < 0 {
		return fmt.Errorf("column: negative ordinal: %w", skgerrors.ErrInvalidArgument)
	}

	return nil
}

// PreSize creates (or extends) the column file at path to exactly
// numRows*valueSize bytes, used by SubEdgePartition.create_edge_attr_col
// to pre-size a newly appended column's file.
func PreSize(path string, numRows, valueSize int) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("column: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(numRows) * int64(valueSize)); err != nil {
		return fmt.Errorf("column: presize %s: %w: %v", path, skgerrors.ErrIOError, err)
	}

	return nil
}

// ---------------------------------------------------------------------
// Variant 4: raw pread/pwrite file.
// ---------------------------------------------------------------------

type rawPartition struct {
	mu        sync.Mutex
	f         *os.File
	valueSize int
	once      sync.Once
}

// OpenRaw opens (creating if absent) a raw pread/pwrite column file.
func OpenRaw(path string, valueSize int) (Partition, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("column: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}

	return &rawPartition{f: f, valueSize: valueSize}, nil
}

func (p *rawPartition) ValueSize() int { return p.valueSize }

func (p *rawPartition) NumRows() int {
	info, err := p.f.Stat()
	if err != nil {
		return 0
	}
	return int(info.Size()) / p.valueSize
}

func (p *rawPartition) Get(i int, out []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := p.f.Stat()
	if err != nil {
		return fmt.Errorf("column: stat: %w: %v", skgerrors.ErrIOError, err)
	}
	if err := boundsCheck(i, p.valueSize, info.Size()); err != nil {
		return err
	}
	if _, err := p.f.ReadAt(out[:p.valueSize], int64(i)*int64(p.valueSize)); err != nil {
		return fmt.Errorf("column: read ordinal %d: %w: %v", i, skgerrors.ErrIOError, err)
	}

	return nil
}

func (p *rawPartition) Set(i int, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row := make([]byte, p.valueSize)
	copy(row, value)
	if _, err := p.f.WriteAt(row, int64(i)*int64(p.valueSize)); err != nil {
		return fmt.Errorf("column: write ordinal %d: %w: %v", i, skgerrors.ErrIOError, err)
	}

	return nil
}

func (p *rawPartition) Flush() error { return nil }

func (p *rawPartition) Close() error {
	var err error
	p.once.Do(func() { err = p.f.Close() })
	return err
}

// ---------------------------------------------------------------------
// Variant 1: mmapped single-column file.
// ---------------------------------------------------------------------

type mmapPartition struct {
	mu        sync.Mutex
	f         *os.File
	m         mmapgo.MMap
	valueSize int
	dirty     bool
	once      sync.Once
	populate  bool
	locked    bool
}

// OpenMmap opens (creating if absent) a single mmapped column file.
// populate prefaults the mapping's pages at open/grow time
// (use_mmap_populate); locked pins them resident via mlock
// (use_mmap_locked).
func OpenMmap(path string, valueSize int, populate, locked bool) (Partition, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("column: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	p := &mmapPartition{f: f, valueSize: valueSize, populate: populate, locked: locked}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("column: stat: %w: %v", skgerrors.ErrIOError, err)
	}
	if info.Size() > 0 {
		m, err := mmapgo.Map(f, mmapgo.RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("column: mmap: %w: %v", skgerrors.ErrIOError, err)
		}
		p.m = m
		p.applyMapHints()
	}

	return p, nil
}

// applyMapHints best-effort prefaults (MADV_WILLNEED) and/or pins
// (mlock) the current mapping; advisory failures are not fatal.
func (p *mmapPartition) applyMapHints() {
	if p.m == nil {
		return
	}
	if p.populate {
		_ = unix.Madvise(p.m, unix.MADV_WILLNEED)
	}
	if p.locked {
		_ = unix.Mlock(p.m)
	}
}

func (p *mmapPartition) ValueSize() int { return p.valueSize }

func (p *mmapPartition) NumRows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m) / p.valueSize
}

func (p *mmapPartition) ensureCapacity(rows int) error {
	need := int64(rows) * int64(p.valueSize)
	if int64(len(p.m)) >= need {
		return nil
	}
	if p.m != nil {
		if p.locked {
			_ = unix.Munlock(p.m)
		}
		if err := p.m.Unmap(); err != nil {
			return fmt.Errorf("column: unmap: %w: %v", skgerrors.ErrIOError, err)
		}
	}
	if err := p.f.Truncate(need); err != nil {
		return fmt.Errorf("column: truncate: %w: %v", skgerrors.ErrIOError, err)
	}
	m, err := mmapgo.Map(p.f, mmapgo.RDWR, 0)
	if err != nil {
		return fmt.Errorf("column: remap: %w: %v", skgerrors.ErrIOError, err)
	}
	p.m = m
	p.applyMapHints()

	return nil
}

func (p *mmapPartition) Get(i int, out []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := boundsCheck(i, p.valueSize, int64(len(p.m))); err != nil {
		return err
	}
	off := i * p.valueSize
	copy(out[:p.valueSize], p.m[off:off+p.valueSize])

	return nil
}

func (p *mmapPartition) Set(i int, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("column: negative ordinal: %w", skgerrors.ErrInvalidArgument)
	}
	if err := p.ensureCapacity(i + 1); err != nil {
		return err
	}
	off := i * p.valueSize
	// Zero the row first, then overwrite the prefix with the (possibly
	// shorter) value.
	for j := 0; j < p.valueSize; j++ {
		p.m[off+j] = 0
	}
	copy(p.m[off:off+p.valueSize], value)
	p.dirty = true

	return nil
}

func (p *mmapPartition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty || p.m == nil {
		return nil
	}
	if err := p.m.Flush(); err != nil {
		return fmt.Errorf("column: msync: %w: %v", skgerrors.ErrIOError, err)
	}
	p.dirty = false

	return nil
}

func (p *mmapPartition) Close() error {
	var err error
	p.once.Do(func() {
		if ferr := p.Flush(); ferr != nil {
			err = ferr
			return
		}
		if p.m != nil {
			if p.locked {
				_ = unix.Munlock(p.m)
			}
			if uerr := p.m.Unmap(); uerr != nil {
				err = uerr
			}
		}
		if cerr := p.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})

	return err
}

// ---------------------------------------------------------------------
// Variant 2: mmapped column group. A group file concatenates sub-column
// values per row; a groupView adds a fixed byte offset to every ordinal.
// ---------------------------------------------------------------------

type groupView struct {
	parent    Partition // the owning mmapPartition, row width = group row width
	offset    int
	valueSize int
}

// OpenGroupView returns a Partition view into parent's rows starting at
// byte offset, covering valueSize bytes per row. parent must already be
// sized to the full group row width (group.RowWidth() in the schema
// package).
func OpenGroupView(parent Partition, offset, valueSize int) Partition {
	return &groupView{parent: parent, offset: offset, valueSize: valueSize}
}

func (g *groupView) ValueSize() int { return g.valueSize }
func (g *groupView) NumRows() int   { return g.parent.NumRows() }

func (g *groupView) Get(i int, out []byte) error {
	full := make([]byte, g.parent.ValueSize())
	if err := g.parent.Get(i, full); err != nil {
		return err
	}
	copy(out[:g.valueSize], full[g.offset:g.offset+g.valueSize])

	return nil
}

func (g *groupView) Set(i int, value []byte) error {
	full := make([]byte, g.parent.ValueSize())
	// Best-effort read of current row so siblings' sub-columns survive;
	// a brand-new ordinal reads back zeros, which is the correct default.
	_ = g.parent.Get(i, full)
	for j := 0; j < g.valueSize; j++ {
		full[g.offset+j] = 0
	}
	copy(full[g.offset:g.offset+g.valueSize], value)

	return g.parent.Set(i, full)
}

func (g *groupView) Flush() error { return g.parent.Flush() }
func (g *groupView) Close() error { return nil } // parent owns the lifecycle

// ---------------------------------------------------------------------
// Variant 3: cached block file, backed by a shared blockcache.Cache.
// ---------------------------------------------------------------------

type blockPartition struct {
	cache     *blockcache.Cache
	iv        interval.Interval
	path      string
	valueSize int
	f         *os.File
}

// OpenBlocks opens a block-cached column file; cache must be shared
// process-wide across every blockPartition.
func OpenBlocks(cache *blockcache.Cache, iv interval.Interval, path string, valueSize int) (Partition, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("column: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}

	return &blockPartition{cache: cache, iv: iv, path: path, valueSize: valueSize, f: f}, nil
}

func (b *blockPartition) ValueSize() int { return b.valueSize }

func (b *blockPartition) NumRows() int {
	info, err := b.f.Stat()
	if err != nil {
		return 0
	}
	return int(info.Size()) / b.valueSize
}

func (b *blockPartition) Get(i int, out []byte) error {
	return b.cache.Read(b.iv, b.path, int64(i)*int64(b.valueSize), out[:b.valueSize])
}

func (b *blockPartition) Set(i int, value []byte) error {
	row := make([]byte, b.valueSize)
	copy(row, value)

	return b.cache.Write(b.iv, b.path, int64(i)*int64(b.valueSize), row)
}

func (b *blockPartition) Flush() error {
	return b.cache.FlushInterval(b.iv)
}

func (b *blockPartition) Close() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return b.f.Close()
}
