// Package record defines the durable per-asset sync record and the rules for
// advancing it through the sync pipeline.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

var (
	// ErrCorrupt is returned when a stored record cannot be decoded
	ErrCorrupt = errors.New("corrupt sync record")

	// ErrHashFrozen is returned when a record's content hash would change
	ErrHashFrozen = errors.New("content hash already set")

	// ErrContentTypeFrozen is returned when the content type would change a second time
	ErrContentTypeFrozen = errors.New("content type already normalized")

	// ErrNotHashed is returned when an operation requires a content hash
	ErrNotHashed = errors.New("record has no content hash")

	// ErrInvalid is returned when a record violates a field constraint
	ErrInvalid = errors.New("invalid sync record")
)

// State is the pipeline position of a record, derived from its fields
type State string

const (
	StateNew      State = "new"
	StateHashed   State = "hashed"
	StateUploaded State = "uploaded"
)

// Record tracks the sync progress of one asset
type Record struct {
	AssetID      string    `json:"assetId" yaml:"assetId"`
	OriginalName string    `json:"name" yaml:"name"`
	ContentType  string    `json:"contentType" yaml:"contentType"`
	Width        int       `json:"width" yaml:"width"`
	Height       int       `json:"height" yaml:"height"`
	ContentHash  string    `json:"hash,omitempty" yaml:"hash,omitempty"`
	Location     string    `json:"location,omitempty" yaml:"location,omitempty"`
	Uploaded     bool      `json:"uploaded" yaml:"uploaded"`
	Normalized   bool      `json:"normalized,omitempty" yaml:"normalized,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
}

// New creates a record in state New from a source descriptor
func New(desc source.Descriptor) *Record {
	return &Record{
		AssetID:      desc.ID,
		OriginalName: desc.Name,
		ContentType:  desc.ContentType,
		Width:        max(desc.Width, 0),
		Height:       max(desc.Height, 0),
		CreatedAt:    desc.CreatedAt,
	}
}

// State derives the pipeline state from which fields are populated
func (r *Record) State() State {
	switch {
	case r.Uploaded:
		return StateUploaded
	case r.ContentHash != "":
		return StateHashed
	default:
		return StateNew
	}
}

// SetNormalizedType records the content type produced by format normalization.
// It may happen once, and only before the record is hashed.
func (r *Record) SetNormalizedType(contentType string) error {
	if r.Normalized {
		return ErrContentTypeFrozen
	}
	if r.ContentHash != "" {
		return fmt.Errorf("%w: cannot normalize a hashed record", ErrContentTypeFrozen)
	}
	r.ContentType = contentType
	r.Normalized = true
	return nil
}

// SetContentHash freezes the record's content identity
func (r *Record) SetContentHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: empty content hash", ErrInvalid)
	}
	if r.ContentHash == hash {
		return nil
	}
	if r.ContentHash != "" {
		return fmt.Errorf("%w: have %s, got %s", ErrHashFrozen, r.ContentHash, hash)
	}
	r.ContentHash = hash
	return nil
}

// SetLocation sets the geocoded place once; later calls are ignored.
// It reports whether the record changed.
func (r *Record) SetLocation(location string) bool {
	if r.Location != "" || location == "" {
		return false
	}
	r.Location = location
	return true
}

// MarkUploaded records that the remote holds this record's content hash
func (r *Record) MarkUploaded() error {
	if r.ContentHash == "" {
		return ErrNotHashed
	}
	r.Uploaded = true
	return nil
}

// Validate checks the field constraints of a record
func (r *Record) Validate() error {
	if r.AssetID == "" {
		return fmt.Errorf("%w: missing asset id", ErrInvalid)
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalid, r.Width, r.Height)
	}
	if r.Uploaded && r.ContentHash == "" {
		return fmt.Errorf("%w: uploaded without content hash", ErrInvalid)
	}
	return nil
}

// Clone returns a copy safe to hand to readers
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Marshal encodes a record for storage
func Marshal(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Unmarshal decodes a stored record. Any decoding or validation failure wraps ErrCorrupt.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &r, nil
}

// CheckTransition verifies that next is a legal successor of prev: identity
// fields are immutable, the hash is frozen once set, the location is never
// overwritten and uploaded never regresses.
func CheckTransition(prev, next *Record) error {
	if prev == nil {
		return nil
	}
	switch {
	case prev.AssetID != next.AssetID:
		return fmt.Errorf("%w: asset id changed", ErrInvalid)
	case prev.OriginalName != next.OriginalName:
		return fmt.Errorf("%w: original name changed", ErrInvalid)
	case prev.ContentHash != "" && prev.ContentHash != next.ContentHash:
		return ErrHashFrozen
	case prev.Location != "" && prev.Location != next.Location:
		return fmt.Errorf("%w: location overwritten", ErrInvalid)
	case prev.Uploaded && !next.Uploaded:
		return fmt.Errorf("%w: uploaded flag regressed", ErrInvalid)
	case prev.Normalized && (!next.Normalized || prev.ContentType != next.ContentType):
		return ErrContentTypeFrozen
	case !next.Normalized && prev.ContentType != next.ContentType:
		return fmt.Errorf("%w: content type changed without normalization", ErrInvalid)
	}
	return nil
}
