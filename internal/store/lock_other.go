//go:build !unix

package store

import "errors"

// ErrLocked is returned when another process holds the store lock
var ErrLocked = errors.New("record store is in use by another process")

// LockFile is a no-op where advisory file locks are unavailable
type LockFile struct{}

// AcquireLockFile always succeeds; SQLite's own busy timeout still applies
func AcquireLockFile(path string) (*LockFile, error) {
	return &LockFile{}, nil
}

func (l *LockFile) Release() error { return nil }
