package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Lower layers wrap
// them with fmt.Errorf("%w: ...") so callers can match with errors.Is.

var (
	// ErrStorage is an I/O or connection failure in the backing store.
	// Fatal for the call, surfaced verbatim, never retried.
	ErrStorage = errors.New("storage error")

	// ErrValidation rejects malformed caller input before any mutation.
	ErrValidation = errors.New("validation error")

	// ErrSerialization is an evidence/recommendations encoding failure.
	ErrSerialization = errors.New("serialization error")

	// ErrDecode is returned when a persisted tag is not a known variant.
	ErrDecode = errors.New("decode error")

	// ErrNotFound is returned for lookups of unknown ids.
	ErrNotFound = errors.New("not found")
)
