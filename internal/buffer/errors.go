package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFile is returned by every operation once the buffer is closed.
	ErrNoFile = errors.New("no file open")
	// ErrStorage wraps failures of the backing record store.
	ErrStorage = errors.New("storage error")
	// ErrLineNotFound means the requested line does not exist.
	ErrLineNotFound = errors.New("line not found")
	// ErrInputPending rejects changes while a pending input run is set.
	ErrInputPending = errors.New("text input not committed")
	ErrNoFileName   = errors.New("no file name")
)

// LineError records the operation and line that failed.
type LineError struct {
	Op   string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("unable to %s line %d: %v", e.Op, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
