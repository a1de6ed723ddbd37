package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytaccess/quota"
)

const (
	schemaVersion = "1"
	lockTimeout   = 5 * time.Second
)

// Snapshot is the on-disk form of a ledger.
type Snapshot struct {
	Version string            `json:"version"`
	ID      string            `json:"id"`
	SavedAt time.Time         `json:"saved_at"`
	Keys    []quota.KeyRecord `json:"keys"`
}

// LedgerStore saves and loads ledger snapshots from one JSON file.
type LedgerStore struct {
	path string
	mu   sync.Mutex
}

// NewLedgerStore returns a store writing to path. Nothing touches the disk
// until Save or Load is called.
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// Path returns the snapshot file path.
func (s *LedgerStore) Path() string {
	return s.path
}

// Save writes records as the new snapshot, replacing any previous one. The
// parent directory is created when missing.
func (s *LedgerStore) Save(ctx context.Context, records []quota.KeyRecord) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: s.path, Err: err}
	}
	lock := newFileLock(s.path)
	if err := lock.lock(ctx, lockTimeout); err != nil {
		return nil, err
	}
	defer lock.unlock()

	snap := &Snapshot{
		Version: schemaVersion,
		ID:      uuid.NewString(),
		SavedAt: time.Now().UTC(),
		Keys:    records,
	}
	if err := writeJSONAtomic(s.path, snap); err != nil {
		return nil, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return snap, nil
}

// Load reads the last snapshot. It returns ErrNotFound when none exists.
func (s *LedgerStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The lock file lives next to the snapshot; without the directory there
	// is nothing to lock or read.
	if _, err := os.Stat(filepath.Dir(s.path)); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	lock := newFileLock(s.path)
	if err := lock.lock(ctx, lockTimeout); err != nil {
		return nil, err
	}
	defer lock.unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: ErrStorageCorrupt}
	}
	return &snap, nil
}
