package enrich

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Thumbnailer renders a small JPEG preview that fits inside a bounding box
type Thumbnailer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// NewThumbnailer returns a thumbnailer fitting 100x100 at quality 50
func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{MaxWidth: 100, MaxHeight: 100, Quality: 50}
}

// Thumbnail decodes data and scales it to fit the bounding box, keeping the
// aspect ratio. Images already inside the box are not enlarged.
func (t *Thumbnailer) Thumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), t.MaxWidth, t.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales w x h by the smaller of the two axis ratios so the result
// fits maxW x maxH. Both sides stay at least one pixel.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= maxW && h <= maxH {
		return w, h
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	fw := max(int(float64(w)*scale+0.5), 1)
	fh := max(int(float64(h)*scale+0.5), 1)
	return min(fw, maxW), min(fh, maxH)
}
