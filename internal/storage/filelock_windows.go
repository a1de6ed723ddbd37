//go:build windows

package storage

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// fileLock is an advisory LockFileEx lock on path + ".lock".
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path + ".lock"}
}

func (l *fileLock) lock(ctx context.Context, timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Path: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		var ol windows.Overlapped
		err := windows.LockFileEx(windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ol)
		if err == nil {
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
	var ol windows.Overlapped
	windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &ol)
	l.file.Close()
	l.file = nil
}
