// Package source enumerates media assets on the device and reads their bytes.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an asset id no longer resolves to an asset
var ErrNotFound = errors.New("asset not found")

// GeoPoint is the capture location carried by an asset
type GeoPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
}

// Descriptor holds the intrinsic properties of an asset, as reported at enumeration time
type Descriptor struct {
	ID          string
	Name        string
	ContentType string
	Width       int
	Height      int
	Location    *GeoPoint
	CreatedAt   time.Time
}

// Source is the asset-library capability the sync engine consumes.
type Source interface {
	// Enumerate lazily yields every asset in a stable order. Both channels are
	// closed when enumeration completes.
	Enumerate(ctx context.Context) (<-chan Descriptor, <-chan error)

	// Fetch returns the raw bytes for an asset id
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// EnumerationError represents an error while enumerating a single entry
type EnumerationError struct {
	Path string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumeration error at %s: %v", e.Path, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// ReadError represents a failure to read the bytes of an asset
type ReadError struct {
	ID  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read error for %s: %v", e.ID, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
