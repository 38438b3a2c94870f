package recno

import "errors"

var (
	// ErrNotFound indicates the record number is outside the store.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates the store has already been closed.
	ErrClosed = errors.New("store closed")

	// ErrIO wraps failures reported by the underlying storage.
	ErrIO = errors.New("store i/o error")
)
