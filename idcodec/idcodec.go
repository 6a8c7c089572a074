// Package idcodec maps external, caller-facing vertex identifiers (strings)
// onto the dense (tag, vid) pairs the storage engine addresses internally.
// The engine never interprets external ids itself; it only calls through
// this interface, letting a caller swap in a real string-interning encoder
// without touching the storage layer.
package idcodec

import (
	"fmt"
	"strconv"

	"github.com/Qksidmx/skgraph/skgerrors"
)

// Encoder translates between a caller's external vertex identifier and the
// engine's internal (tag, vid) pair.
type Encoder interface {
	Encode(label string, tag uint8, extID string) (vid uint32, err error)
	Decode(label string, tag uint8, vid uint32) (extID string, err error)
}

// LongIDEncoder treats every external id as the decimal text of its
// internal vertex id directly, matching the "Long" id_type mode: no
// interning table, no persisted mapping. Grounded on the original engine's
// StringToLongIdEncoder, which parses the external string as the vid and
// formats the vid back as decimal text on the way out.
type LongIDEncoder struct{}

// NewLongIDEncoder returns a LongIDEncoder. It owns no state.
func NewLongIDEncoder() *LongIDEncoder { return &LongIDEncoder{} }

// Encode parses extID as a base-10 uint32. A non-numeric string is an
// InvalidArgument, not a NotExist, since there is no notion of a failed
// lookup in this encoder.
func (LongIDEncoder) Encode(_ string, _ uint8, extID string) (uint32, error) {
	n, err := strconv.ParseUint(extID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("idcodec: parse %q as vertex id: %w", extID, skgerrors.ErrInvalidArgument)
	}

	return uint32(n), nil
}

// Decode formats vid back as its decimal text.
func (LongIDEncoder) Decode(_ string, _ uint8, vid uint32) (string, error) {
	return strconv.FormatUint(uint64(vid), 10), nil
}
