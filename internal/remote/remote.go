// Package remote talks to the content-addressed store that receives assets.
// An Index answers whether a content hash is already stored and accepts new
// uploads keyed by their hash.
package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

var (
	// ErrRemote is wrapped by every failure reported by the remote store
	ErrRemote = errors.New("remote store error")

	// ErrInvalidUpload is returned for uploads that are rejected before any call is made
	ErrInvalidUpload = errors.New("invalid upload")
)

// Index is the remote dedup index and upload target
type Index interface {
	// Exists reports whether the remote already holds content with this hash
	Exists(ctx context.Context, hash string) (bool, error)

	// Store uploads an asset. On success a later Exists for the same hash
	// returns true. Storing the same hash twice is tolerated.
	Store(ctx context.Context, upload Upload) error
}

// Metadata describes an uploaded asset
type Metadata struct {
	Name       string
	Width      int
	Height     int
	Hash       string
	Location   string
	CreatedAt  time.Time
	Properties map[string]string
}

// Upload is one asset ready to be stored
type Upload struct {
	ContentType string
	Data        []byte
	Thumbnail   []byte
	Metadata    Metadata
}

func (u Upload) validate() error {
	if !hasher.Valid(u.Metadata.Hash) {
		return fmt.Errorf("%w: bad content hash %q", ErrInvalidUpload, u.Metadata.Hash)
	}
	if u.ContentType == "" {
		return fmt.Errorf("%w: missing content type", ErrInvalidUpload)
	}
	return nil
}

// attributes flattens the metadata for object stores that carry string maps
func (m Metadata) attributes() map[string]string {
	attrs := map[string]string{
		"file-name": m.Name,
		"width":     strconv.Itoa(m.Width),
		"height":    strconv.Itoa(m.Height),
		"hash":      m.Hash,
	}
	if m.Location != "" {
		attrs["location"] = m.Location
	}
	if !m.CreatedAt.IsZero() {
		attrs["created-at"] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range m.Properties {
		attrs["prop-"+k] = v
	}
	return attrs
}

// UnreachableError is a transport failure: the remote could not be reached
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("remote %s unreachable: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

func (e *UnreachableError) Is(target error) bool {
	return target == ErrRemote
}

// StatusError is a non-success response from the remote
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote %s failed with status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("remote %s failed with status %d", e.Op, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRemote
}

// OpError is a failure reported by a cloud SDK backend
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == ErrRemote
}

// objectKey is the content-addressed key of an asset
func objectKey(hash string) string {
	return "assets/" + hash
}

// thumbnailKey is the key of an asset's thumbnail
func thumbnailKey(hash string) string {
	return "thumbnails/" + hash + ".jpg"
}

// headerValue Q-encodes (RFC 2047) values carrying control characters, which
// cannot travel raw in an HTTP header. Other values are sent as they are.
func headerValue(v string) string {
	if strings.ContainsFunc(v, func(r rune) bool { return r != '\t' && unicode.IsControl(r) }) {
		return mime.QEncoding.Encode("utf-8", v)
	}
	return v
}

// asciiAttributes Q-encodes every value outside printable US-ASCII, the only
// characters S3 user metadata accepts
func asciiAttributes(attrs map[string]string) map[string]string {
	for k, v := range attrs {
		attrs[k] = mime.QEncoding.Encode("utf-8", v)
	}
	return attrs
}
