package remote

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

// fakeBackend is an in-process asset backend that records what it receives
type fakeBackend struct {
	mu         sync.Mutex
	stored     map[string][]byte
	headers    map[string]http.Header
	thumbnails map[string][]byte
	checks     atomic.Int64
	posts      atomic.Int64

	checkStatus int    // overrides /check-asset when non-zero
	assetStatus int    // overrides /asset when non-zero
	ackBody     string // overrides the acknowledgement when non-empty
	thumbStatus int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		stored:     make(map[string][]byte),
		headers:    make(map[string]http.Header),
		thumbnails: make(map[string][]byte),
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /check-asset", func(w http.ResponseWriter, r *http.Request) {
		b.checks.Add(1)
		if b.checkStatus != 0 {
			w.WriteHeader(b.checkStatus)
			return
		}
		b.mu.Lock()
		_, ok := b.stored[r.URL.Query().Get("hash")]
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /asset", func(w http.ResponseWriter, r *http.Request) {
		b.posts.Add(1)
		if b.assetStatus != 0 {
			http.Error(w, "backend exploded", b.assetStatus)
			return
		}
		body, _ := io.ReadAll(r.Body)
		hash := r.Header.Get("hash")
		b.mu.Lock()
		b.stored[hash] = body
		b.headers[hash] = r.Header.Clone()
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if b.ackBody != "" {
			io.WriteString(w, b.ackBody)
			return
		}
		io.WriteString(w, `{"_id":"`+hash+`"}`)
	})
	mux.HandleFunc("POST /asset/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		if b.thumbStatus != 0 {
			w.WriteHeader(b.thumbStatus)
			return
		}
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.thumbnails[r.Header.Get("hash")] = body
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func newTestIndex(t *testing.T, b *fakeBackend) *HTTPIndex {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	idx, err := NewHTTPIndex(srv.URL + "/")
	require.NoError(t, err)
	return idx
}

func testUpload() Upload {
	return Upload{
		ContentType: "image/jpeg",
		Data:        []byte("jpeg bytes"),
		Thumbnail:   []byte("thumb"),
		Metadata: Metadata{
			Name:       "IMG_0001.jpg",
			Width:      4032,
			Height:     3024,
			Hash:       testHash,
			Location:   "Brisbane, Australia",
			Properties: map[string]string{"Model": "Pixel"},
		},
	}
}

func TestHTTPIndex_StoreThenExists(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	idx := newTestIndex(t, backend)

	exists, err := idx.Exists(ctx, testHash)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, idx.Store(ctx, testUpload()))

	exists, err = idx.Exists(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, exists)

	h := backend.headers[testHash]
	assert.Equal(t, "image/jpeg", h.Get("content-type"))
	assert.Equal(t, "IMG_0001.jpg", h.Get("file-name"))
	assert.Equal(t, "4032", h.Get("width"))
	assert.Equal(t, "3024", h.Get("height"))
	assert.Equal(t, "Brisbane, Australia", h.Get("location"))
	assert.JSONEq(t, `{"Model":"Pixel"}`, h.Get("properties"))
	assert.Equal(t, []byte("jpeg bytes"), backend.stored[testHash])
	assert.Equal(t, []byte("thumb"), backend.thumbnails[testHash])
}

func TestHTTPIndex_StoreEncodesControlCharacters(t *testing.T) {
	backend := newFakeBackend()
	idx := newTestIndex(t, backend)

	upload := testUpload()
	upload.Metadata.Name = "holiday\nphoto.jpg"
	upload.Metadata.Location = "Zürich, Schweiz"
	require.NoError(t, idx.Store(context.Background(), upload))

	h := backend.headers[testHash]
	decoded, err := new(mime.WordDecoder).DecodeHeader(h.Get("file-name"))
	require.NoError(t, err)
	assert.Equal(t, "holiday\nphoto.jpg", decoded)
	assert.Equal(t, "Zürich, Schweiz", h.Get("location"), "printable values are sent as they are")
}

func TestHTTPIndex_ExistsStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"unexpected status", http.StatusTeapot, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.checkStatus = tt.status
			idx := newTestIndex(t, backend)

			exists, err := idx.Exists(context.Background(), testHash)
			assert.False(t, exists)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRemote)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.Code)
		})
	}
}

func TestHTTPIndex_StoreFailures(t *testing.T) {
	t.Run("non-success status", func(t *testing.T) {
		backend := newFakeBackend()
		backend.assetStatus = http.StatusBadGateway
		idx := newTestIndex(t, backend)

		err := idx.Store(context.Background(), testUpload())
		assert.ErrorIs(t, err, ErrRemote)
		assert.Contains(t, err.Error(), "backend exploded")
	})

	t.Run("missing acknowledgement", func(t *testing.T) {
		backend := newFakeBackend()
		backend.ackBody = "ok"
		idx := newTestIndex(t, backend)

		err := idx.Store(context.Background(), testUpload())
		assert.ErrorIs(t, err, ErrRemote)
	})

	t.Run("invalid hash is rejected locally", func(t *testing.T) {
		backend := newFakeBackend()
		idx := newTestIndex(t, backend)

		u := testUpload()
		u.Metadata.Hash = "not-a-hash"
		err := idx.Store(context.Background(), u)
		assert.ErrorIs(t, err, ErrInvalidUpload)
		assert.Equal(t, int64(0), backend.posts.Load())
	})
}

func TestHTTPIndex_ThumbnailFailureIsNotFatal(t *testing.T) {
	backend := newFakeBackend()
	backend.thumbStatus = http.StatusInternalServerError
	idx := newTestIndex(t, backend)

	require.NoError(t, idx.Store(context.Background(), testUpload()))
	assert.Contains(t, backend.stored, testHash)
}

func TestHTTPIndex_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	idx, err := NewHTTPIndex(url)
	require.NoError(t, err)

	_, err = idx.Exists(context.Background(), testHash)
	var unreachable *UnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.ErrorIs(t, err, ErrRemote)

	err = idx.Store(context.Background(), testUpload())
	assert.True(t, errors.As(err, &unreachable))
}

func TestNewHTTPIndex_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "://bad"} {
		_, err := NewHTTPIndex(raw)
		assert.Error(t, err, raw)
	}
}

func TestMetadataAttributes(t *testing.T) {
	attrs := testUpload().Metadata.attributes()
	assert.Equal(t, "IMG_0001.jpg", attrs["file-name"])
	assert.Equal(t, "4032", attrs["width"])
	assert.Equal(t, "Pixel", attrs["prop-Model"])
	assert.True(t, strings.HasPrefix(objectKey(testHash), "assets/"))
	assert.Equal(t, "thumbnails/"+testHash+".jpg", thumbnailKey(testHash))
}
