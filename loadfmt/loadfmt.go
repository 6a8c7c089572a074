// Package loadfmt parses flat, line-oriented bulk-load files into
// request.EdgeRequest values the public skg API can consume directly. It
// lives outside the core edge-storage package set: it only ever calls
// through request.EdgeRequest, the same surface a caller would use by
// hand. Grounded on the original engine's LoadEdgeAction/fileparser, which
// drive a line callback over a delimited file, skip comment/header lines,
// and reject self-loop edges before they ever reach storage.
package loadfmt

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Qksidmx/skgraph/memtable"
	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skgerrors"
)

// Parser reads r and calls emit once per parsed edge. Parsing stops at the
// first error emit or the reader returns.
type Parser interface {
	Parse(r io.Reader, label string, sc *schema.MetaAttributes, emit func(request.EdgeRequest) error) error
}

// CSVEdgeParser reads "src,dst[,weight],col1,col2,..." rows, one edge per
// row, matching the original LoadEdgeAction's column layout: two vertex
// ids, an optional weight when the schema is weighted, then one value per
// declared column in schema order.
type CSVEdgeParser struct {
	// Comma is the field delimiter. Zero defaults to ','.
	Comma rune
	// IgnoreHeader skips the first row unconditionally.
	IgnoreHeader bool
}

// Parse implements Parser.
func (p CSVEdgeParser) Parse(r io.Reader, label string, sc *schema.MetaAttributes, emit func(request.EdgeRequest) error) error {
	comma := p.Comma
	if comma == 0 {
		comma = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	expected := len(sc.Cols) + 2
	if sc.IsWeighted {
		expected++
	}

	lineno := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loadfmt: line %d: %w", lineno, err)
		}
		line := lineno
		lineno++

		if line == 0 && p.IgnoreHeader {
			continue
		}
		if len(record) == 0 {
			continue
		}
		if strings.HasPrefix(record[0], "#") || strings.HasPrefix(record[0], "%") {
			continue
		}
		if len(record) != expected {
			return fmt.Errorf("loadfmt: line %d: expected %d fields, got %d: %w", line, expected, len(record), skgerrors.ErrInvalidArgument)
		}

		req, err := p.parseRow(label, sc, record, line)
		if err != nil {
			return err
		}
		if err := emit(req); err != nil {
			return fmt.Errorf("loadfmt: line %d: %w", line, err)
		}
	}
}

func (p CSVEdgeParser) parseRow(label string, sc *schema.MetaAttributes, record []string, line int) (request.EdgeRequest, error) {
	src, err := parseUint32(record[0])
	if err != nil {
		return request.EdgeRequest{}, fmt.Errorf("loadfmt: line %d: src: %w", line, err)
	}
	dst, err := parseUint32(record[1])
	if err != nil {
		return request.EdgeRequest{}, fmt.Errorf("loadfmt: line %d: dst: %w", line, err)
	}
	if src == dst {
		return request.EdgeRequest{}, fmt.Errorf("loadfmt: line %d: edge %d -> %d: %w", line, src, dst, skgerrors.ErrUnsupportedSelfLoop)
	}

	idx := 2
	var weight float32
	if sc.IsWeighted {
		w, err := strconv.ParseFloat(record[idx], 32)
		if err != nil {
			return request.EdgeRequest{}, fmt.Errorf("loadfmt: line %d: weight: %w", line, err)
		}
		weight = float32(w)
		idx++
	}

	props := make([]memtable.PropertyValue, 0, len(sc.Cols))
	for _, col := range sc.Cols {
		if idx >= len(record) {
			break
		}
		props = append(props, memtable.PropertyValue{Name: col.Name, Value: []byte(record[idx])})
		idx++
	}

	return request.EdgeRequest{
		Label: label, Src: src, Dst: dst, Tag: sc.Tag, Weight: weight, Props: props,
	}, nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, skgerrors.ErrInvalidArgument)
	}

	return uint32(n), nil
}
