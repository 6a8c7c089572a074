// Package skgerrors defines the sentinel errors shared across every edge-storage
// package.
//
// Error policy (explicit and strict), carried over from the rest of this
// module's packages:
//   - Only sentinel variables (package-level) are exposed here.
//   - Callers MUST use errors.Is(err, skgerrors.ErrX) to branch on semantics.
//   - Sentinels are NEVER wrapped with formatted strings at definition site;
//     call sites attach context with fmt.Errorf("...: %w", ErrX).
//   - NotExist is a normal control-flow branch inside containment-walk loops,
//     not a logged failure; every other sentinel aborts the enclosing request.
package skgerrors

import "errors"

var (
	// ErrNotExist indicates a lookup found nothing. Used as a normal branch
	// by callers, not as an exceptional failure.
	ErrNotExist = errors.New("skg: not exist")

	// ErrOverLimit indicates a read stopped because its result set reached
	// a configured cap. Treated as success by the composition layer.
	ErrOverLimit = errors.New("skg: over limit")

	// ErrInvalidArgument indicates a caller contract violation.
	ErrInvalidArgument = errors.New("skg: invalid argument")

	// ErrFileNotFound indicates an expected file is absent; distinct from
	// ErrIOError because it frequently indicates "not yet created".
	ErrFileNotFound = errors.New("skg: file not found")

	// ErrIOError indicates an operating-system level I/O failure.
	ErrIOError = errors.New("skg: io error")

	// ErrNoSpace indicates the device backing the store is full.
	ErrNoSpace = errors.New("skg: no space left on device")

	// ErrCorruption indicates an on-disk structural invariant was found
	// broken at read time. The engine should be closed and reopened after
	// repair.
	ErrCorruption = errors.New("skg: corruption detected")

	// ErrNotImplemented indicates a schema operation disallowed in the
	// current state (e.g. adding a column while rows exist in a MemTable).
	ErrNotImplemented = errors.New("skg: not implemented")

	// ErrUnsupportedSelfLoop indicates an edge with src == dst was rejected
	// at ingest; this is an engine policy, not a storage failure.
	ErrUnsupportedSelfLoop = errors.New("skg: self loops are not supported")
)
