// Package recno provides record-number keyed stores.
//
// Records are numbered from 1 with no gaps. Inserting or deleting a record
// renumbers every record after it, so record N always means the Nth record
// regardless of earlier mutations.
package recno

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is an ordered sequence of byte records addressed by record number.
type Store interface {
	// Get returns a copy of record n.
	Get(n int) ([]byte, error)
	// Last returns the number of the last record, 0 when the store is empty.
	Last() (int, error)
	// Put replaces record n, or appends when n is Last()+1.
	Put(n int, data []byte) error
	// InsertBefore stores data as record n, moving n and later records up.
	// n may be Last()+1.
	InsertBefore(n int, data []byte) error
	// InsertAfter stores data as record n+1. InsertAfter(0) inserts at the top.
	InsertAfter(n int, data []byte) error
	// Delete removes record n, moving later records down.
	Delete(n int) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Dir holds temporary bolt files. Empty means os.TempDir().
	Dir string
	// Name distinguishes files of concurrent sessions.
	Name string
}

// Open returns a new empty store for the configured backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMem(), nil
	case BackendBolt:
		dir := opts.Dir
		if dir == "" {
			dir = os.TempDir()
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		name := opts.Name
		if name == "" {
			name = "records"
		}
		return OpenTemp(filepath.Join(dir, "qex-"+name+".db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
