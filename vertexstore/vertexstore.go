// Package vertexstore holds per-vertex-label attribute columns, the
// `<db>/vdata/prop.v.<label>.<colname>` files. It is deliberately thin: one
// dense, mmap-backed column file per (label, column), row index = vid,
// grounded on the original engine's FixedBytesVertexColumn (a single mmap
// region written in place, flushed via msync). Schema management for
// vertex labels stays out of scope; callers declare columns one at a time
// as they open them.
package vertexstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Qksidmx/skgraph/column"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// Store is the minimal vertex-attribute contract the core storage engine
// and bulk-load tooling depend on.
type Store interface {
	Get(vid uint32, col string) ([]byte, bool, error)
	Set(vid uint32, col string, value []byte) error
	Flush() error
	Close() error
}

// DenseFileStore opens one column.Partition per (label, column) under
// dir/vdata, growing each file to cover newly-seen vertex ids on Set.
type DenseFileStore struct {
	mu      sync.Mutex
	dir     string
	label   string
	present map[string]map[uint32]struct{} // per-column "has this vid been Set" tracking
	cols    map[string]column.Partition
	widths  map[string]int
}

// NewDenseFileStore returns a DenseFileStore rooted at dir/vdata for label.
// No column files are opened until DeclareColumn is called.
func NewDenseFileStore(dir, label string) *DenseFileStore {
	return &DenseFileStore{
		dir: dir, label: label,
		present: make(map[string]map[uint32]struct{}),
		cols:    make(map[string]column.Partition),
		widths:  make(map[string]int),
	}
}

func (s *DenseFileStore) path(col string) string {
	return filepath.Join(s.dir, "vdata", fmt.Sprintf("prop.v.%s.%s", s.label, col))
}

// DeclareColumn opens (creating) col's backing file with the given
// fixed-row width, pre-sized to hold numVertices rows.
func (s *DenseFileStore) DeclareColumn(col string, valueSize, numVertices int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cols[col]; ok {
		return nil
	}
	path := s.path(col)
	if err := column.PreSize(path, numVertices, valueSize); err != nil {
		return fmt.Errorf("vertexstore: presize %s: %w", path, err)
	}
	part, err := column.OpenMmap(path, valueSize, false, false)
	if err != nil {
		return fmt.Errorf("vertexstore: open %s: %w", path, err)
	}
	s.cols[col] = part
	s.widths[col] = valueSize
	s.present[col] = make(map[uint32]struct{})

	return nil
}

// Get reads col's value for vid. found is false when the column was never
// Set for that vid (its bytes are whatever PreSize zeroed them to, which
// must not be mistaken for a meaningful value).
func (s *DenseFileStore) Get(vid uint32, col string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.cols[col]
	if !ok {
		return nil, false, fmt.Errorf("vertexstore: column %s not declared: %w", col, skgerrors.ErrInvalidArgument)
	}
	if _, set := s.present[col][vid]; !set {
		return nil, false, nil
	}
	buf := make([]byte, s.widths[col])
	if err := part.Get(int(vid), buf); err != nil {
		return nil, false, err
	}

	return buf, true, nil
}

// Set writes col's value for vid, growing the backing file first if vid is
// past its current row count.
func (s *DenseFileStore) Set(vid uint32, col string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.cols[col]
	if !ok {
		return fmt.Errorf("vertexstore: column %s not declared: %w", col, skgerrors.ErrInvalidArgument)
	}
	width := s.widths[col]
	if int(vid) >= part.NumRows() {
		if err := s.growLocked(col, int(vid)+1); err != nil {
			return err
		}
		part = s.cols[col]
	}
	buf := make([]byte, width)
	n := len(value)
	if n > width {
		n = width
	}
	copy(buf, value[:n])
	if err := part.Set(int(vid), buf); err != nil {
		return err
	}
	s.present[col][vid] = struct{}{}

	return nil
}

func (s *DenseFileStore) growLocked(col string, numVertices int) error {
	if err := s.cols[col].Close(); err != nil {
		return err
	}
	path := s.path(col)
	width := s.widths[col]
	if err := column.PreSize(path, numVertices, width); err != nil {
		return err
	}
	part, err := column.OpenMmap(path, width, false, false)
	if err != nil {
		return err
	}
	s.cols[col] = part

	return nil
}

// Flush flushes every declared column to disk.
func (s *DenseFileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, part := range s.cols {
		if err := part.Flush(); err != nil {
			return fmt.Errorf("vertexstore: flush %s: %w", name, err)
		}
	}

	return nil
}

// Close flushes then releases every declared column's handle.
func (s *DenseFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, part := range s.cols {
		if err := part.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
