package elist

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Qksidmx/skgraph/edgerec"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// indexRecordSize is the on-disk width of one (vid, first_ordinal) pair in
// a src/dst index file.
const indexRecordSize = 4 + 4

// Index is the sparse on-disk map from vid to the first matching ordinal,
// used for both elist.src.idx (half-open range start) and elist.dst.idx
// (chain head). Records are stored in ascending vid order and located by
// binary search.
type Index interface {
	// Lookup returns the payload ordinal for vid, or
	// (edgerec.AbsentOrdinal, false) if vid is not present.
	Lookup(vid uint32) (uint32, bool)
	// NextPayload returns the payload of the smallest indexed vid strictly
	// greater than vid, or (0, false) if none exists. Combined with
	// Lookup, this turns the sparse src-index's single first_ordinal entry
	// per vid into the half-open range [first_ordinal, past_last_ordinal):
	// src rows are contiguous in elist, so the next src's first ordinal is
	// this src's past-last ordinal.
	NextPayload(vid uint32) (uint32, bool)
	Len() int
	Close() error
}

type fileIndex struct {
	mu      sync.Mutex
	f       *os.File
	vids    []uint32
	payload []uint32
}

// OpenIndex reads an entire sparse index file into memory and offers
// binary-search point lookups. Index files are small relative to the
// elist they describe (one entry per distinct src or dst), so loading
// them eagerly keeps the lookup path allocation-free.
func OpenIndex(path string) (Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("elist: open index %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("elist: read index %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	if len(data)%indexRecordSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("elist: index %s has truncated record: %w", path, skgerrors.ErrCorruption)
	}

	n := len(data) / indexRecordSize
	idx := &fileIndex{f: f, vids: make([]uint32, n), payload: make([]uint32, n)}
	for i := 0; i < n; i++ {
		off := i * indexRecordSize
		idx.vids[i] = binary.LittleEndian.Uint32(data[off : off+4])
		idx.payload[i] = binary.LittleEndian.Uint32(data[off+4 : off+8])
	}

	return idx, nil
}

func (x *fileIndex) Lookup(vid uint32) (uint32, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i := sort.Search(len(x.vids), func(i int) bool { return x.vids[i] >= vid })
	if i < len(x.vids) && x.vids[i] == vid {
		return x.payload[i], true
	}

	return edgerec.AbsentOrdinal, false
}

func (x *fileIndex) NextPayload(vid uint32) (uint32, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i := sort.Search(len(x.vids), func(i int) bool { return x.vids[i] > vid })
	if i < len(x.vids) {
		return x.payload[i], true
	}

	return 0, false
}

func (x *fileIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.vids)
}

func (x *fileIndex) Close() error {
	return x.f.Close()
}

// WriteIndex writes a fully-built, vid-ascending set of (vid, payload)
// pairs to path, atomically replacing any prior content. Used by the
// writer to emit elist.src.idx and elist.dst.idx. Entries MUST already be
// sorted ascending by vid; WriteIndex does not re-sort them so the writer
// controls ordering explicitly.
func WriteIndex(path string, vids, payload []uint32) error {
	if len(vids) != len(payload) {
		return fmt.Errorf("elist: mismatched index slice lengths: %w", skgerrors.ErrInvalidArgument)
	}

	buf := make([]byte, len(vids)*indexRecordSize)
	for i := range vids {
		off := i * indexRecordSize
		binary.LittleEndian.PutUint32(buf[off:off+4], vids[i])
		binary.LittleEndian.PutUint32(buf[off+4:off+8], payload[i])
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("elist: write index %s: %w: %v", path, skgerrors.ErrIOError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("elist: rename index %s: %w: %v", path, skgerrors.ErrIOError, err)
	}

	return nil
}
