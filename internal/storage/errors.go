package storage

import "errors"

// Storage errors shared across implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists in an append-only store.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks failures worth retrying: connection loss,
	// deadlock, serialization conflict.
	ErrTransient = errors.New("transient storage error")
)

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
