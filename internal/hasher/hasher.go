// Package hasher computes the content identity used to deduplicate assets.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
)

// Hasher computes a stable digest over asset bytes
type Hasher interface {
	Sum(data []byte) (string, error)
}

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// SHA256 hashes bytes with SHA-256 and renders the digest as lowercase hex
type SHA256 struct{}

// Sum returns the hex digest of data
func (SHA256) Sum(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SumReader hashes everything read from r
func (SHA256) SumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s is a well-formed SHA-256 hex digest
func Valid(s string) bool {
	return digestPattern.MatchString(s)
}
