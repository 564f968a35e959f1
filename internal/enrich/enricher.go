package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

// Input is what the enricher needs to know about one asset
type Input struct {
	Data        []byte
	ContentType string

	// Point is the capture location; geocoding is skipped when nil
	Point *source.GeoPoint
}

// Result holds the derived metadata. Fields are empty when their step failed.
type Result struct {
	Location   string
	Thumbnail  []byte
	Properties map[string]string
}

// Error reports which enrichment step failed. It is never fatal to a sync.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("enrichment %s failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Enricher derives upload metadata for an asset
type Enricher struct {
	thumbnailer *Thumbnailer
	geocoder    Geocoder
}

// Option configures an Enricher
type Option func(*Enricher)

// WithGeocoder enables reverse geocoding
func WithGeocoder(g Geocoder) Option {
	return func(e *Enricher) {
		e.geocoder = g
	}
}

// WithThumbnailer replaces the default thumbnailer; nil disables thumbnails
func WithThumbnailer(t *Thumbnailer) Option {
	return func(e *Enricher) {
		e.thumbnailer = t
	}
}

// New creates an enricher with the default thumbnailer and no geocoder
func New(opts ...Option) *Enricher {
	e := &Enricher{thumbnailer: NewThumbnailer()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich runs every configured step. It always returns a Result; the error
// joins the *Error of each failed step.
func (e *Enricher) Enrich(ctx context.Context, in Input) (Result, error) {
	var res Result
	var errs []error

	if in.Point != nil && e.geocoder != nil {
		location, err := e.geocoder.Reverse(ctx, *in.Point)
		if err != nil {
			errs = append(errs, &Error{Step: "geocode", Err: err})
		} else {
			res.Location = location
		}
	}

	if e.thumbnailer != nil {
		thumb, err := e.thumbnailer.Thumbnail(in.Data)
		if err != nil {
			errs = append(errs, &Error{Step: "thumbnail", Err: err})
		} else {
			res.Thumbnail = thumb
		}
	}

	props, err := Properties(in.Data)
	if err != nil {
		errs = append(errs, &Error{Step: "properties", Err: err})
	} else if len(props) > 0 {
		res.Properties = props
	}

	return res, errors.Join(errs...)
}
