// Package permission reports whether the sync engine may read the media library.
package permission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Status is the authorization state of the media library
type Status string

const (
	Granted      Status = "granted"
	Denied       Status = "denied"
	Restricted   Status = "restricted"
	Undetermined Status = "undetermined"
)

// Error is returned when a sync cannot start because access is not granted
type Error struct {
	Status Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("media library access %s", e.Status)
}

// ErrNotGranted matches any *Error
var ErrNotGranted = errors.New("media library access not granted")

func (e *Error) Is(target error) bool {
	return target == ErrNotGranted
}

// Checker is the permission capability of the host platform
type Checker interface {
	// Check reports granted or denied without prompting
	Check(ctx context.Context) Status

	// Request asks for access and reports the full status
	Request(ctx context.Context) Status
}

// Require returns an *Error unless status is granted
func Require(status Status) error {
	if status == Granted {
		return nil
	}
	return &Error{Status: status}
}

// Filesystem derives access to a media directory from the operating system
type Filesystem struct {
	dir string
}

// NewFilesystem creates a checker for dir
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{dir: dir}
}

func (f *Filesystem) Check(ctx context.Context) Status {
	if f.Request(ctx) == Granted {
		return Granted
	}
	return Denied
}

// Request maps the state of the directory onto a Status: readable is
// granted, permission errors are denied, a missing directory is
// undetermined and a path that is not a directory is restricted.
func (f *Filesystem) Request(ctx context.Context) Status {
	info, err := os.Stat(f.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Undetermined
	case errors.Is(err, fs.ErrPermission):
		return Denied
	case err != nil:
		return Denied
	case !info.IsDir():
		return Restricted
	}

	d, err := os.Open(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Denied
		}
		return Restricted
	}
	defer d.Close()

	if _, err := d.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return Denied
	}
	return Granted
}

// Static always reports the same status. Used when the host has already
// granted access out of band.
type Static Status

func (s Static) Check(ctx context.Context) Status {
	if Status(s) == Granted {
		return Granted
	}
	return Denied
}

func (s Static) Request(ctx context.Context) Status {
	return Status(s)
}
