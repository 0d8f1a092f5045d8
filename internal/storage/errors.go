package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an existing
	// key. For positions this includes the single-active-position rule: a
	// reservation fails while any non-terminal cycle exists for the pair.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict is returned by conditional updates when the stored state
	// no longer matches the expected state, meaning a concurrent actor
	// already advanced the record. Callers treat it as success-of-intent.
	ErrConflict = errors.New("conditional update conflict: stored state differs from expected")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
