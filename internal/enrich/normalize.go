// Package enrich transforms and describes asset bytes: format normalization
// before hashing, and thumbnails, reverse geocoding and image properties
// before upload.
package enrich

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when bytes cannot be decoded as an image
var ErrUnsupportedFormat = errors.New("unsupported image format")

// NormalizedType is the content type every normalized asset is converted to
const NormalizedType = "image/jpeg"

// DefaultNormalizeTypes are the content types converted to JPEG before hashing
var DefaultNormalizeTypes = []string{"image/heic", "image/heif", "image/webp", "image/tiff", "image/bmp"}

// Normalizer converts formats the backend does not accept into JPEG
type Normalizer struct {
	types   map[string]bool
	quality int
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithNormalizeTypes replaces the set of content types that are converted
func WithNormalizeTypes(types ...string) NormalizerOption {
	return func(n *Normalizer) {
		n.types = make(map[string]bool, len(types))
		for _, t := range types {
			n.types[strings.ToLower(t)] = true
		}
	}
}

// WithJPEGQuality configures the output JPEG quality (1-100)
func WithJPEGQuality(quality int) NormalizerOption {
	return func(n *Normalizer) {
		n.quality = quality
	}
}

// NewNormalizer creates a normalizer that converts DefaultNormalizeTypes at full quality
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{quality: 100}
	WithNormalizeTypes(DefaultNormalizeTypes...)(n)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NeedsNormalization reports whether assets of this content type are converted
func (n *Normalizer) NeedsNormalization(contentType string) bool {
	return n.types[strings.ToLower(contentType)]
}

// Normalize decodes data and re-encodes it as JPEG. The result is
// deterministic for the same input bytes.
func (n *Normalizer) Normalize(data []byte) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), NormalizedType, nil
}
