// Package elist provides mmap- and pread-backed access to the three files
// of a SubEdgePartition: the adjacency array ("elist") and the src/dst
// sparse indexes ("elist.src.idx", "elist.dst.idx").
package elist

import (
	"fmt"
	"os"
	"sync"

	mmapgo "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// EdgeList is the contract for the dense adjacency array, satisfied by
// both the mmap and raw backends.
type EdgeList interface {
	NumEdges() int
	Get(i int) (edgerec.PersistentEdge, error)
	Set(i int, e edgerec.PersistentEdge) error
	Flush() error
	Close() error
}

// Backend selects the adjacency-array storage variant.
type Backend int

const (
	BackendMmap Backend = iota
	BackendRaw
)

// Open opens (or creates, if absent) the elist file at path using the
// requested backend. An empty file is legal and presents as zero rows.
// populate and locked only affect the mmap backend: populate prefaults the
// mapping's pages at open/grow time (use_mmap_populate), locked pins them
// resident via mlock (use_mmap_locked).
func Open(path string, backend Backend, populate, locked bool) (EdgeList, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("elist: open %s: %w: %v", path, skgerrors.ErrIOError, err)
	}

	switch backend {
	case BackendRaw:
		return newRawEdgeList(f)
	default:
		return newMmapEdgeList(f, populate, locked)
	}
}

// rawEdgeList implements EdgeList via pread/pwrite, no mmap.
type rawEdgeList struct {
	mu    sync.Mutex
	f     *os.File
	n     int
	once  sync.Once
}

func newRawEdgeList(f *os.File) (*rawEdgeList, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("elist: stat: %w: %v", skgerrors.ErrIOError, err)
	}
	n := int(info.Size()) / edgerec.OnDiskSize

	return &rawEdgeList{f: f, n: n}, nil
}

func (r *rawEdgeList) NumEdges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *rawEdgeList) Get(i int) (edgerec.PersistentEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= r.n {
		return edgerec.PersistentEdge{}, fmt.Errorf("elist: ordinal %d out of range [0,%d): %w", i, r.n, skgerrors.ErrCorruption)
	}
	buf := make([]byte, edgerec.OnDiskSize)
	if _, err := r.f.ReadAt(buf, int64(i)*int64(edgerec.OnDiskSize)); err != nil {
		return edgerec.PersistentEdge{}, fmt.Errorf("elist: read ordinal %d: %w: %v", i, skgerrors.ErrIOError, err)
	}

	return edgerec.Decode(buf)
}

func (r *rawEdgeList) Set(i int, e edgerec.PersistentEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 {
		return fmt.Errorf("elist: negative ordinal: %w", skgerrors.ErrInvalidArgument)
	}
	buf := make([]byte, edgerec.OnDiskSize)
	if err := edgerec.Encode(e, buf); err != nil {
		return err
	}
	if _, err := r.f.WriteAt(buf, int64(i)*int64(edgerec.OnDiskSize)); err != nil {
		return fmt.Errorf("elist: write ordinal %d: %w: %v", i, skgerrors.ErrIOError, err)
	}
	if i+1 > r.n {
		r.n = i + 1
	}

	return nil
}

func (r *rawEdgeList) Flush() error {
	return nil
}

func (r *rawEdgeList) Close() error {
	var err error
	r.once.Do(func() { err = r.f.Close() })
	return err
}

// mmapEdgeList implements EdgeList via a writable mmap region; Flush
// issues a synchronous msync when dirty.
type mmapEdgeList struct {
	mu       sync.Mutex
	f        *os.File
	m        mmapgo.MMap
	n        int
	dirty    bool
	once     sync.Once
	populate bool
	locked   bool
}

func newMmapEdgeList(f *os.File, populate, locked bool) (*mmapEdgeList, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("elist: stat: %w: %v", skgerrors.ErrIOError, err)
	}
	size := info.Size()
	n := int(size) / edgerec.OnDiskSize

	el := &mmapEdgeList{f: f, n: n, populate: populate, locked: locked}
	if size > 0 {
		m, err := mmapgo.Map(f, mmapgo.RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("elist: mmap: %w: %v", skgerrors.ErrIOError, err)
		}
		el.m = m
		el.applyMapHints()
	}

	return el, nil
}

// applyMapHints best-effort prefaults (MADV_WILLNEED) and/or pins
// (mlock) the current mapping; advisory failures are not fatal.
func (e *mmapEdgeList) applyMapHints() {
	if e.m == nil {
		return
	}
	if e.populate {
		_ = unix.Madvise(e.m, unix.MADV_WILLNEED)
	}
	if e.locked {
		_ = unix.Mlock(e.m)
	}
}

func (e *mmapEdgeList) ensureCapacity(rows int) error {
	need := int64(rows) * int64(edgerec.OnDiskSize)
	if e.m != nil && int64(len(e.m)) >= need {
		return nil
	}
	if e.m != nil {
		if e.locked {
			_ = unix.Munlock(e.m)
		}
		if err := e.m.Unmap(); err != nil {
			return fmt.Errorf("elist: unmap: %w: %v", skgerrors.ErrIOError, err)
		}
		e.m = nil
	}
	if err := e.f.Truncate(need); err != nil {
		return fmt.Errorf("elist: truncate: %w: %v", skgerrors.ErrIOError, err)
	}
	m, err := mmapgo.Map(e.f, mmapgo.RDWR, 0)
	if err != nil {
		return fmt.Errorf("elist: remap: %w: %v", skgerrors.ErrIOError, err)
	}
	e.m = m
	e.applyMapHints()

	return nil
}

func (e *mmapEdgeList) NumEdges() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

func (e *mmapEdgeList) Get(i int) (edgerec.PersistentEdge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= e.n {
		return edgerec.PersistentEdge{}, fmt.Errorf("elist: ordinal %d out of range [0,%d): %w", i, e.n, skgerrors.ErrCorruption)
	}
	off := i * edgerec.OnDiskSize

	return edgerec.Decode(e.m[off : off+edgerec.OnDiskSize])
}

func (e *mmapEdgeList) Set(i int, edge edgerec.PersistentEdge) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 {
		return fmt.Errorf("elist: negative ordinal: %w", skgerrors.ErrInvalidArgument)
	}
	if err := e.ensureCapacity(i + 1); err != nil {
		return err
	}
	off := i * edgerec.OnDiskSize
	if err := edgerec.Encode(edge, e.m[off:off+edgerec.OnDiskSize]); err != nil {
		return err
	}
	if i+1 > e.n {
		e.n = i + 1
	}
	e.dirty = true

	return nil
}

func (e *mmapEdgeList) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty || e.m == nil {
		return nil
	}
	if err := unix.Msync(e.m, unix.MS_SYNC); err != nil {
		return fmt.Errorf("elist: msync: %w: %v", skgerrors.ErrIOError, err)
	}
	e.dirty = false

	return nil
}

func (e *mmapEdgeList) Close() error {
	var err error
	e.once.Do(func() {
		if flushErr := e.Flush(); flushErr != nil {
			err = flushErr
			return
		}
		if e.m != nil {
			if e.locked {
				_ = unix.Munlock(e.m)
			}
			if unmapErr := e.m.Unmap(); unmapErr != nil {
				err = unmapErr
			}
		}
		if closeErr := e.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})

	return err
}
