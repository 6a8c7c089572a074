// Package schema holds MetaAttributes (per-label schema) and
// ColumnDescriptor, and persists them to the on-disk meta files
// (edge.attr.cnf, vertex.attr.cnf).
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnType enumerates the value kinds a ColumnDescriptor may declare.
type ColumnType int

const (
	ColumnTypeNone ColumnType = iota
	ColumnTypeTag
	ColumnTypeWeight
	ColumnTypeInt32
	ColumnTypeInt64
	ColumnTypeFloat
	ColumnTypeDouble
	ColumnTypeFixedBytes
	ColumnTypeTime
	ColumnTypeVarchar
	ColumnTypeGroup
)

// FixedSize returns the on-disk byte width for fixed-size column types, or
// 0 for every other type (Varchar, Group, FixedBytes, and any type not
// listed), whose width is not implied by the type alone.
func (t ColumnType) FixedSize() int {
	switch t {
	case ColumnTypeTag:
		return 1
	case ColumnTypeWeight, ColumnTypeInt32, ColumnTypeFloat:
		return 4
	case ColumnTypeInt64, ColumnTypeDouble, ColumnTypeTime:
		return 8
	default:
		return 0
	}
}

// ColumnDescriptor describes one edge- or vertex-property column.
type ColumnDescriptor struct {
	Name             string             `yaml:"name"`
	Type             ColumnType         `yaml:"type"`
	ID               uint8              `yaml:"id"`
	ValueSize        int                `yaml:"value_size"`
	FixedLength      bool               `yaml:"fixed_length"`
	TimeFormat       string             `yaml:"time_format,omitempty"`
	OffsetWithinRow  int                `yaml:"offset_within_row"`
	SubCols          []ColumnDescriptor `yaml:"sub_cols,omitempty"`
}

// RowWidth returns the declared value_size for non-group columns, or the
// sum of sub-column widths for a Group column.
func (c ColumnDescriptor) RowWidth() int {
	if c.Type != ColumnTypeGroup {
		return c.ValueSize
	}
	total := 0
	for _, sc := range c.SubCols {
		total += sc.RowWidth()
	}

	return total
}

// MetaAttributes is the schema for one edge-label or vertex-label.
type MetaAttributes struct {
	Label      string             `yaml:"label"`
	Tag        uint8              `yaml:"tag"`
	SrcLabel   string             `yaml:"src_label"`
	SrcTag     uint8              `yaml:"src_tag"`
	DstLabel   string             `yaml:"dst_label"`
	DstTag     uint8              `yaml:"dst_tag"`
	IsWeighted bool               `yaml:"is_weighted"`
	Cols       []ColumnDescriptor `yaml:"cols"`
}

// Column looks up a declared column by name.
func (m MetaAttributes) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range m.Cols {
		if c.Name == name {
			return c, true
		}
	}

	return ColumnDescriptor{}, false
}

// ColumnByID looks up a declared column by its numeric id.
func (m MetaAttributes) ColumnByID(id uint8) (ColumnDescriptor, bool) {
	for _, c := range m.Cols {
		if c.ID == id {
			return c, true
		}
	}

	return ColumnDescriptor{}, false
}

// FixedBytesLen is the total width, in bytes, of the fixed-size property
// payload of one row under this schema (used by MemTable.estimated_bytes).
func (m MetaAttributes) FixedBytesLen() int {
	total := 0
	for _, c := range m.Cols {
		total += c.RowWidth()
	}

	return total
}

// Registry holds every registered edge-label (and vertex-label) schema for
// one database, backed by <db>/meta/edge.attr.cnf and
// <db>/meta/vertex.attr.cnf. Persistence uses YAML, matching the sibling
// intervals file's format and the existing gopkg.in/yaml.v3 dependency.
type Registry struct {
	byLabel map[string]*MetaAttributes
	byTag   map[uint8]*MetaAttributes
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byLabel: make(map[string]*MetaAttributes),
		byTag:   make(map[uint8]*MetaAttributes),
	}
}

// Register adds or replaces a label's schema.
func (r *Registry) Register(m MetaAttributes) {
	cp := m
	r.byLabel[m.Label] = &cp
	r.byTag[m.Tag] = &cp
}

// ByLabel returns the schema for a label.
func (r *Registry) ByLabel(label string) (*MetaAttributes, bool) {
	m, ok := r.byLabel[label]
	return m, ok
}

// ByTag returns the schema for a label tag.
func (r *Registry) ByTag(tag uint8) (*MetaAttributes, bool) {
	m, ok := r.byTag[tag]
	return m, ok
}

// All returns every registered schema, order unspecified.
func (r *Registry) All() []MetaAttributes {
	out := make([]MetaAttributes, 0, len(r.byLabel))
	for _, m := range r.byLabel {
		out = append(out, *m)
	}

	return out
}

// Save writes the registry to path as YAML.
func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(r.All())
	if err != nil {
		return fmt.Errorf("schema: marshal registry: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Load reads a registry previously written by Save. A missing file yields
// an empty registry (a fresh database has no labels registered yet).
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}

	var metas []MetaAttributes
	if err := yaml.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("schema: unmarshal %s: %w", path, err)
	}

	reg := NewRegistry()
	for _, m := range metas {
		reg.Register(m)
	}

	return reg, nil
}
