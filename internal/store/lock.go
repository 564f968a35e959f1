//go:build unix

package store

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrLocked is returned when another process holds the store lock
var ErrLocked = errors.New("record store is in use by another process")

// LockFile is an exclusive advisory lock held for the life of a store
type LockFile struct {
	path string
	file *os.File
}

// AcquireLockFile takes a non-blocking exclusive lock on path, creating the
// file if needed. The lock is released by Release or when the process exits.
func AcquireLockFile(path string) (*LockFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s held)", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// PID for diagnostics only
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "%d\n", os.Getpid())
	}

	return &LockFile{path: path, file: file}, nil
}

// Release unlocks and closes the lock file. It is safe to call twice.
func (l *LockFile) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close lock file: %w", err))
	}
	l.file = nil
	return errors.Join(errs...)
}
