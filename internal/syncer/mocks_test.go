package syncer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/rumor-ml/commons.systems/assetsync/internal/enrich"
	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
	"github.com/rumor-ml/commons.systems/assetsync/internal/remote"
	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

// Mock implementations for testing

type mockSource struct {
	mu         sync.Mutex
	assets     []source.Descriptor
	data       map[string][]byte
	fetchErrs  map[string]error
	enumErrs   []error
	fetchCalls map[string]int
}

func newMockSource() *mockSource {
	return &mockSource{
		data:       make(map[string][]byte),
		fetchErrs:  make(map[string]error),
		fetchCalls: make(map[string]int),
	}
}

func (m *mockSource) add(desc source.Descriptor, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, desc)
	m.data[desc.ID] = data
}

func (m *mockSource) setData(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = data
}

func (m *mockSource) setFetchErr(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fetchErrs, id)
		return
	}
	m.fetchErrs[id] = err
}

func (m *mockSource) fetches(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls[id]
}

func (m *mockSource) totalFetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.fetchCalls {
		total += n
	}
	return total
}

func (m *mockSource) resetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls = make(map[string]int)
}

func (m *mockSource) Enumerate(ctx context.Context) (<-chan source.Descriptor, <-chan error) {
	m.mu.Lock()
	assets := append([]source.Descriptor(nil), m.assets...)
	errs := append([]error(nil), m.enumErrs...)
	m.mu.Unlock()

	descCh := make(chan source.Descriptor, len(assets))
	errCh := make(chan error, len(errs))

	go func() {
		defer close(descCh)
		defer close(errCh)

		for _, err := range errs {
			select {
			case <-ctx.Done():
				return
			case errCh <- err:
			}
		}
		for _, desc := range assets {
			select {
			case <-ctx.Done():
				return
			case descCh <- desc:
			}
		}
	}()

	return descCh, errCh
}

func (m *mockSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls[id]++
	if err, ok := m.fetchErrs[id]; ok {
		return nil, &source.ReadError{ID: id, Err: err}
	}
	data, ok := m.data[id]
	if !ok {
		return nil, &source.ReadError{ID: id, Err: source.ErrNotFound}
	}
	return append([]byte(nil), data...), nil
}

type countingHasher struct {
	calls int64
}

func (h *countingHasher) Sum(data []byte) (string, error) {
	atomic.AddInt64(&h.calls, 1)
	return hasher.SHA256{}.Sum(data)
}

func (h *countingHasher) count() int64 {
	return atomic.LoadInt64(&h.calls)
}

type mockIndex struct {
	mu          sync.Mutex
	hashes      map[string]bool
	uploads     []remote.Upload
	existsErr   error
	storeErr    error
	existsCalls int
	storeCalls  int
	onStore     func(remote.Upload)
}

func newMockIndex() *mockIndex {
	return &mockIndex{hashes: make(map[string]bool)}
}

func (m *mockIndex) Exists(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.hashes[hash], nil
}

func (m *mockIndex) Store(ctx context.Context, upload remote.Upload) error {
	m.mu.Lock()
	m.storeCalls++
	err := m.storeErr
	if err == nil {
		m.hashes[upload.Metadata.Hash] = true
		m.uploads = append(m.uploads, upload)
	}
	hook := m.onStore
	m.mu.Unlock()

	if hook != nil {
		hook(upload)
	}
	return err
}

func (m *mockIndex) setStoreErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr = err
}

func (m *mockIndex) calls() (exists, store int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsCalls, m.storeCalls
}

func (m *mockIndex) resetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls = 0
	m.storeCalls = 0
}

func (m *mockIndex) stored() []remote.Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]remote.Upload(nil), m.uploads...)
}

type mockEnricher struct {
	mu     sync.Mutex
	result enrich.Result
	err    error
	inputs []enrich.Input
}

func (m *mockEnricher) Enrich(ctx context.Context, in enrich.Input) (enrich.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return m.result, m.err
}

func (m *mockEnricher) calls() []enrich.Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]enrich.Input(nil), m.inputs...)
}

func testImage(w, h int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 10), B: uint8(y * 10), A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h, shade), nil))
	return buf.Bytes()
}

func encodeBMP(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImage(w, h, 80)))
	return buf.Bytes()
}

func jpegAsset(id string) source.Descriptor {
	return source.Descriptor{
		ID:          id,
		Name:        id + ".jpg",
		ContentType: "image/jpeg",
		Width:       10,
		Height:      10,
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sha(t *testing.T, data []byte) string {
	t.Helper()
	sum, err := hasher.SHA256{}.Sum(data)
	require.NoError(t, err)
	return sum
}
