package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
)

// Memory is a Store held in process memory. It keeps encoded bytes so it
// exercises the same serialization path as the durable stores.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, id string) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	data, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(id, data)
}

func (m *Memory) Put(ctx context.Context, r *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	data, err := encodeUpdate(m.entries[r.AssetID], r)
	if err != nil {
		return err
	}
	m.entries[r.AssetID] = data
	return nil
}

func (m *Memory) CreateIfAbsent(ctx context.Context, r *record.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}

	if _, ok := m.entries[r.AssetID]; ok {
		return false, nil
	}
	data, err := record.Marshal(r)
	if err != nil {
		return false, err
	}
	m.entries[r.AssetID] = data
	return true, nil
}

func (m *Memory) List(ctx context.Context) ([]*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]*record.Record, 0, len(ids))
	var errs []error
	for _, id := range ids {
		r, err := decode(id, m.entries[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, r)
	}
	return records, errors.Join(errs...)
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries = make(map[string][]byte)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PutRaw stores bytes without validation. Tests use it to plant corrupt entries.
func (m *Memory) PutRaw(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = append([]byte(nil), data...)
}
