// Package store persists network segments and port placements.
package store

import (
	"errors"
	"fmt"

	"github.com/glennswest/vlanfabric/pkg/network"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is an AssignmentStore that holds resources until closed.
type Store interface {
	network.AssignmentStore
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the store for the named backend. path is the database file
// for sqlite and the YAML state file for file; memory ignores it.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendFile:
		return NewFileStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
