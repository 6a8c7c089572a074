// Package edgerec holds the fixed-size on-disk edge record, its in-memory
// counterpart, and the properties bitset threaded through both.
package edgerec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AbsentOrdinal is the sentinel stored in the low 31 bits of NextOrFlags
// (or returned by index lookups) meaning "no such edge".
const AbsentOrdinal uint32 = (1 << 31) - 1

// TombstoneFlag is the high bit of NextOrFlags marking a row deleted.
const TombstoneFlag uint32 = 0x8000_0000

// RecordSize is the fixed on-disk byte width of one PersistentEdge row,
// not counting the properties bitset (17 bytes).
const RecordSize = 4 + 4 + 4 + 1 + 4 // src + dst + weight + tag + next_or_flags

// OnDiskSize is the total on-disk row size including the fixed-width
// properties bitset.
const OnDiskSize = RecordSize + BitsetByteWidth

// Key identifies an edge uniquely within a SubEdgePartition once
// deduplicated: no two live rows share (src,dst,tag).
type Key struct {
	Src uint32
	Dst uint32
	Tag uint8
}

// PersistentEdge is the fixed-size on-disk edge row. Field order is
// src, dst, weight, tag, next_or_flags, properties_bitset.
type PersistentEdge struct {
	Src           uint32
	Dst           uint32
	Weight        float32
	Tag           uint8
	NextOrFlags   uint32
	PropertyBits  PropertyBits
}

// Next returns the ordinal of the next edge sharing Dst, or AbsentOrdinal.
func (e PersistentEdge) Next() uint32 {
	return e.NextOrFlags & (TombstoneFlag - 1)
}

// Tombstoned reports whether the high bit of NextOrFlags is set.
func (e PersistentEdge) Tombstoned() bool {
	return e.NextOrFlags&TombstoneFlag != 0
}

// WithNext returns a copy with the next-pointer bits replaced, preserving
// the tombstone flag.
func (e PersistentEdge) WithNext(next uint32) PersistentEdge {
	e.NextOrFlags = (e.NextOrFlags & TombstoneFlag) | (next & (TombstoneFlag - 1))
	return e
}

// Tombstone returns a copy with the tombstone flag set.
func (e PersistentEdge) Tombstone() PersistentEdge {
	e.NextOrFlags |= TombstoneFlag
	return e
}

// Key returns the deduplication key for this row.
func (e PersistentEdge) Key() Key {
	return Key{Src: e.Src, Dst: e.Dst, Tag: e.Tag}
}

// Encode serializes a PersistentEdge into its fixed-width little-endian
// on-disk representation.
func Encode(e PersistentEdge, out []byte) error {
	if len(out) < OnDiskSize {
		return fmt.Errorf("edgerec: encode buffer too small: need %d, got %d", OnDiskSize, len(out))
	}
	binary.LittleEndian.PutUint32(out[0:4], e.Src)
	binary.LittleEndian.PutUint32(out[4:8], e.Dst)
	binary.LittleEndian.PutUint32(out[8:12], math.Float32bits(e.Weight))
	out[12] = e.Tag
	binary.LittleEndian.PutUint32(out[13:17], e.NextOrFlags)
	copy(out[17:17+BitsetByteWidth], e.PropertyBits.Bytes())

	return nil
}

// Decode deserializes a PersistentEdge from its on-disk representation.
func Decode(raw []byte) (PersistentEdge, error) {
	if len(raw) < OnDiskSize {
		return PersistentEdge{}, fmt.Errorf("edgerec: decode buffer too small: need %d, got %d", OnDiskSize, len(raw))
	}
	e := PersistentEdge{
		Src:         binary.LittleEndian.Uint32(raw[0:4]),
		Dst:         binary.LittleEndian.Uint32(raw[4:8]),
		Weight:      math.Float32frombits(binary.LittleEndian.Uint32(raw[8:12])),
		Tag:         raw[12],
		NextOrFlags: binary.LittleEndian.Uint32(raw[13:17]),
	}
	e.PropertyBits = FromBytes(raw[17 : 17+BitsetByteWidth])

	return e, nil
}

// MemoryEdge is the in-memory counterpart of PersistentEdge used by the
// MemTable and by the writer/compaction pipeline. FixedProps holds
// concatenated fixed-size property values in column-declaration order.
// VarProps holds variable-length field payloads; FixedProps stores their
// 32-bit byte offsets into VarProps for variable-length columns.
type MemoryEdge struct {
	Src          uint32
	Dst          uint32
	Weight       float32
	Tag          uint8
	Tombstoned   bool
	PropertyBits PropertyBits
	FixedProps   []byte
	VarProps     []byte
}

// Key returns the deduplication key for this row.
func (e MemoryEdge) Key() Key {
	return Key{Src: e.Src, Dst: e.Dst, Tag: e.Tag}
}

// ToPersistent strips the variable-length payload and next-pointer (which
// only the writer can compute) producing a PersistentEdge shell; Next must
// be set separately by the writer.
func (e MemoryEdge) ToPersistent() PersistentEdge {
	p := PersistentEdge{
		Src:          e.Src,
		Dst:          e.Dst,
		Weight:       e.Weight,
		Tag:          e.Tag,
		PropertyBits: e.PropertyBits.Clone(),
	}
	if e.Tombstoned {
		p = p.Tombstone()
	}
	p = p.WithNext(AbsentOrdinal)

	return p
}
