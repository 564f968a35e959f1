// Package staging keeps the normalized bytes of hashed assets on disk until
// they are committed remotely, so an interrupted upload can resume without
// fetching or hashing the asset again.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

var (
	// ErrMissing is returned when nothing is staged under a hash
	ErrMissing = errors.New("no staged content")

	// ErrInvalidKey is returned for keys that are not content hashes
	ErrInvalidKey = errors.New("invalid staging key")
)

// Area is a content-addressed directory of staged blobs
type Area struct {
	dir    string
	hasher hasher.SHA256
}

// Open creates the staging directory if needed
func Open(dir string) (*Area, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the staging directory
func (a *Area) Dir() string {
	return a.dir
}

func (a *Area) path(hash string) (string, error) {
	if !hasher.Valid(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, hash)
	}
	// Fan out on the first two hex chars to keep directories small.
	return filepath.Join(a.dir, hash[:2], hash), nil
}

// Put stores data under hash. Uses atomic write pattern: write to temp file,
// then rename.
func (a *Area) Put(hash string, data []byte) error {
	path, err := a.path(hash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get returns the bytes staged under hash. Content that no longer matches its
// hash is removed and reported as missing.
func (a *Area) Get(hash string) ([]byte, error) {
	path, err := a.path(hash)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read staged content: %w", err)
	}

	sum, _ := a.hasher.Sum(data)
	if sum != hash {
		os.Remove(path)
		return nil, fmt.Errorf("%w: staged content for %s is damaged", ErrMissing, hash)
	}
	return data, nil
}

// Has reports whether content is staged under hash
func (a *Area) Has(hash string) bool {
	path, err := a.path(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes staged content. Deleting a missing entry is not an error.
func (a *Area) Delete(hash string) error {
	path, err := a.path(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staged content: %w", err)
	}
	return nil
}

// Clear removes everything staged
func (a *Area) Clear() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(a.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear staging directory: %w", err)
		}
	}
	return nil
}
