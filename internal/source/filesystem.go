package source

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"
)

// DefaultExtensions are the media extensions enumerated when none are configured
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif", ".webp", ".gif", ".tif", ".tiff", ".bmp"}

// FilesystemOption configures a FilesystemSource
type FilesystemOption func(*FilesystemSource)

// FilesystemSource implements Source over a directory tree. Asset ids are
// slash-separated paths relative to the root.
type FilesystemSource struct {
	root       string
	extensions []string // lowercase, with dot
	skipHidden bool
	skipDirs   map[string]bool
	bufferSize int
}

// WithExtensions configures the file extensions to enumerate
func WithExtensions(exts ...string) FilesystemOption {
	return func(s *FilesystemSource) {
		normalized := make([]string, len(exts))
		for i, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			normalized[i] = strings.ToLower(ext)
		}
		s.extensions = normalized
	}
}

// WithSkipHidden configures whether to skip hidden files and directories
func WithSkipHidden(skip bool) FilesystemOption {
	return func(s *FilesystemSource) {
		s.skipHidden = skip
	}
}

// WithSkipDirs adds directory names that are never descended into
func WithSkipDirs(names ...string) FilesystemOption {
	return func(s *FilesystemSource) {
		for _, name := range names {
			s.skipDirs[name] = true
		}
	}
}

// WithBufferSize configures the enumeration channel buffer size
func WithBufferSize(size int) FilesystemOption {
	return func(s *FilesystemSource) {
		s.bufferSize = size
	}
}

// NewFilesystemSource creates a source rooted at dir
func NewFilesystemSource(dir string, opts ...FilesystemOption) *FilesystemSource {
	s := &FilesystemSource{
		root:       filepath.Clean(dir),
		skipHidden: true,
		skipDirs:   map[string]bool{".thumbnails": true},
		bufferSize: 100,
	}
	WithExtensions(DefaultExtensions...)(s)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Root returns the directory the source enumerates
func (s *FilesystemSource) Root() string {
	return s.root
}

// Enumerate walks the directory tree in lexical order and sends a Descriptor
// for each matching file.
func (s *FilesystemSource) Enumerate(ctx context.Context) (<-chan Descriptor, <-chan error) {
	descCh := make(chan Descriptor, s.bufferSize)
	errCh := make(chan error, s.bufferSize)

	go func() {
		defer close(descCh)
		defer close(errCh)

		err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if err != nil {
				if path == s.root {
					return err
				}
				s.sendErr(ctx, errCh, &EnumerationError{Path: path, Err: err})
				return nil
			}

			if path != s.root {
				if entry.IsDir() && s.skipDirs[entry.Name()] {
					return filepath.SkipDir
				}
				if s.skipHidden && strings.HasPrefix(entry.Name(), ".") {
					if entry.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}

			if entry.IsDir() || !entry.Type().IsRegular() || !s.matches(path) {
				return nil
			}

			desc, err := s.describe(path, entry)
			if err != nil {
				s.sendErr(ctx, errCh, &EnumerationError{Path: path, Err: err})
				return nil
			}

			select {
			case descCh <- desc:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil {
			s.sendErr(ctx, errCh, &EnumerationError{Path: s.root, Err: err})
		}
	}()

	return descCh, errCh
}

// Fetch reads the bytes of the asset with the given id
func (s *FilesystemSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(id)
	if err != nil {
		return nil, &ReadError{ID: id, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ReadError{ID: id, Err: ErrNotFound}
		}
		return nil, &ReadError{ID: id, Err: err}
	}
	return data, nil
}

func (s *FilesystemSource) resolve(id string) (string, error) {
	rel := filepath.FromSlash(id)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("asset id %q escapes source root", id)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *FilesystemSource) matches(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range s.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// describe reads the header of a file to fill in content type, dimensions and
// EXIF capture data. Undecodable images still produce a descriptor with zero
// dimensions.
func (s *FilesystemSource) describe(path string, entry fs.DirEntry) (Descriptor, error) {
	info, err := entry.Info()
	if err != nil {
		return Descriptor{}, err
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return Descriptor{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, err
	}
	defer f.Close()

	desc := Descriptor{
		ID:        filepath.ToSlash(rel),
		Name:      norm.NFC.String(entry.Name()),
		CreatedAt: info.ModTime().UTC(),
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to detect content type: %w", err)
	}
	desc.ContentType = strings.TrimSpace(strings.SplitN(mtype.String(), ";", 2)[0])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Descriptor{}, err
	}
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		desc.Width = cfg.Width
		desc.Height = cfg.Height
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Descriptor{}, err
	}
	if x, err := exif.Decode(f); err == nil {
		if lat, long, err := x.LatLong(); err == nil {
			desc.Location = &GeoPoint{Latitude: lat, Longitude: long}
		}
		if taken, err := x.DateTime(); err == nil {
			desc.CreatedAt = taken.UTC()
		}
	}

	return desc, nil
}

func (s *FilesystemSource) sendErr(ctx context.Context, errCh chan<- error, err error) {
	select {
	case errCh <- err:
	case <-ctx.Done():
	}
}
