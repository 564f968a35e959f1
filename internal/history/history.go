// Package history records one session per sync run with its running totals.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no session exists for an id
var ErrNotFound = errors.New("session not found")

// Status represents the current state of a sync run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stats tracks the counts of assets in each outcome
type Stats struct {
	Discovered   int `firestore:"discovered" json:"discovered"`
	Uploaded     int `firestore:"uploaded" json:"uploaded"`
	Deduplicated int `firestore:"deduplicated" json:"deduplicated"`
	Skipped      int `firestore:"skipped" json:"skipped"`
	Failed       int `firestore:"failed" json:"failed"`
}

// Session represents one sync run
type Session struct {
	ID          string     `firestore:"-" json:"id"`
	Status      Status     `firestore:"status" json:"status"`
	StartedAt   time.Time  `firestore:"startedAt" json:"startedAt"`
	CompletedAt *time.Time `firestore:"completedAt" json:"completedAt,omitempty"`
	Root        string     `firestore:"root" json:"root"`
	Stats       Stats      `firestore:"stats" json:"stats"`
	Error       string     `firestore:"error" json:"error,omitempty"`
}

// Store defines operations for managing run sessions
type Store interface {
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// List returns the most recent sessions first, at most limit of them
	List(ctx context.Context, limit int) ([]*Session, error)
}

// Memory keeps sessions in process memory
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemory creates an empty in-memory session store
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]Session)}
}

func (m *Memory) Create(ctx context.Context, session *Session) error {
	return m.Update(ctx, session)
}

func (m *Memory) Update(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return errors.New("session ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s := s
		sessions = append(sessions, &s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}
