// Package store persists sync records keyed by asset id. Every write is a
// full-record write that is checked against the record already stored, so
// frozen fields cannot regress no matter which caller writes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
)

// ErrNotFound is returned when no record exists for an asset id
var ErrNotFound = errors.New("record not found")

// ErrClosed is returned when the store has been closed
var ErrClosed = errors.New("store closed")

// Store is the durable map from asset id to sync record
type Store interface {
	// Get returns the record for id. A stored record that cannot be decoded
	// returns an error wrapping record.ErrCorrupt.
	Get(ctx context.Context, id string) (*record.Record, error)

	// Put writes the full record. It fails if the write would violate a
	// record invariant relative to the stored value.
	Put(ctx context.Context, r *record.Record) error

	// CreateIfAbsent writes r only if no entry exists for its asset id
	CreateIfAbsent(ctx context.Context, r *record.Record) (bool, error)

	// List returns every decodable record ordered by asset id. Entries that
	// fail to decode are reported in the returned error alongside the rest.
	List(ctx context.Context) ([]*record.Record, error)

	// Clear deletes every record
	Clear(ctx context.Context) error

	Close() error
}

// Driver names accepted by Open
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open opens a store using the named driver
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverBolt, "":
		return OpenBolt(path)
	case DriverSQLite:
		return OpenSQLite(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// CorruptEntryError identifies a stored entry that failed to decode
type CorruptEntryError struct {
	AssetID string
	Err     error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.AssetID, e.Err)
}

func (e *CorruptEntryError) Unwrap() error {
	return e.Err
}

// encodeUpdate validates r against the previously stored bytes and encodes it.
// Undecodable previous bytes are overwritten.
func encodeUpdate(prev []byte, r *record.Record) ([]byte, error) {
	if prev != nil {
		if old, err := record.Unmarshal(prev); err == nil {
			if err := record.CheckTransition(old, r); err != nil {
				return nil, fmt.Errorf("rejected update for %s: %w", r.AssetID, err)
			}
		}
	}
	return record.Marshal(r)
}

func decode(id string, data []byte) (*record.Record, error) {
	r, err := record.Unmarshal(data)
	if err != nil {
		return nil, &CorruptEntryError{AssetID: id, Err: err}
	}
	return r, nil
}
