package edgerec

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/Qksidmx/skgraph/skgerrors"
)

// MaxColumns is the engine-wide maximum number of declared columns per
// edge label.
const MaxColumns = 256

// BitsetByteWidth is the fixed on-disk width, in bytes, of the
// properties_bitset field of a PersistentEdge row.
const BitsetByteWidth = MaxColumns / 8

// PropertyBits is a fixed-width bitset indicating which declared columns
// carry a non-null value for one edge row: a property is null iff its
// bit is clear.
type PropertyBits struct {
	bits *bitset.BitSet
}

// NewPropertyBits returns an all-clear PropertyBits ready for use.
func NewPropertyBits() PropertyBits {
	return PropertyBits{bits: bitset.New(MaxColumns)}
}

// Set marks columnID as present. Returns ErrInvalidArgument without
// panicking when columnID is out of range.
func (p *PropertyBits) Set(columnID uint8) error {
	if p.bits == nil {
		p.bits = bitset.New(MaxColumns)
	}
	if int(columnID) >= MaxColumns {
		return skgerrors.ErrInvalidArgument
	}
	p.bits.Set(uint(columnID))

	return nil
}

// Clear marks columnID as absent (null).
func (p *PropertyBits) Clear(columnID uint8) {
	if p.bits == nil {
		return
	}
	p.bits.Clear(uint(columnID))
}

// Test reports whether columnID is present.
func (p PropertyBits) Test(columnID uint8) bool {
	if p.bits == nil {
		return false
	}
	return p.bits.Test(uint(columnID))
}

// Bytes packs the bitset into BitsetByteWidth little-endian bytes for the
// on-disk PersistentEdge properties_bitset field.
func (p PropertyBits) Bytes() []byte {
	out := make([]byte, BitsetByteWidth)
	if p.bits == nil {
		return out
	}
	for col := 0; col < MaxColumns; col++ {
		if p.bits.Test(uint(col)) {
			out[col/8] |= 1 << (uint(col) % 8)
		}
	}

	return out
}

// FromBytes rebuilds a PropertyBits from its on-disk byte representation.
func FromBytes(raw []byte) PropertyBits {
	p := NewPropertyBits()
	for i, b := range raw {
		if i >= BitsetByteWidth {
			break
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				p.bits.Set(uint(i*8 + bit))
			}
		}
	}

	return p
}

// Clone returns an independent copy.
func (p PropertyBits) Clone() PropertyBits {
	if p.bits == nil {
		return NewPropertyBits()
	}
	return PropertyBits{bits: p.bits.Clone()}
}
