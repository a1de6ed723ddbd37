//go:build !windows

package storage

import (
	"context"
	"os"
	"syscall"
	"time"
)

// fileLock is an advisory flock(2) lock on path + ".lock", shared by every
// process that writes the same snapshot.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path + ".lock"}
}

// lock polls for the exclusive lock until it is acquired, timeout passes or
// ctx is done.
func (l *fileLock) lock(ctx context.Context, timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Path: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
			l.file = f
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return &StorageError{Op: "lock", Path: l.path, Err: ErrLockTimeout}
		}
		select {
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (l *fileLock) unlock() {
	if l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
}
