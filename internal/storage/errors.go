// Package storage persists quota ledger snapshots in a JSON file so a
// restarted process does not forget which keys are spent.
package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for snapshot storage.
var (
	// ErrNotFound indicates no snapshot has been written yet.
	ErrNotFound = errors.New("storage: snapshot not found")
	// ErrStorageCorrupt indicates the snapshot file could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring the file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with the operation and file involved.
// Use errors.As() to extract it:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s: %v\n", storErr.Op, storErr.Path, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("lock", "read", "write").
	Op string
	// Path is the file involved.
	Path string
	// Err is the underlying error.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }
