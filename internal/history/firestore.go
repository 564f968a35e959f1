package history

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/rumor-ml/commons.systems/assetsync/internal/gcp"
)

const sessionsCollectionBase = "assetsync-runs"

// FirestoreStore implements Store using Firestore
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new Firestore-backed session store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: gcp.CollectionName(sessionsCollectionBase),
	}
}

// Create creates a new run session
func (s *FirestoreStore) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	_, err := s.client.Collection(s.collection).Doc(session.ID).Set(ctx, session)
	return err
}

// Update overwrites an existing run session
func (s *FirestoreStore) Update(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	_, err := s.client.Collection(s.collection).Doc(session.ID).Set(ctx, session)
	return err
}

// Get retrieves a run session by ID
func (s *FirestoreStore) Get(ctx context.Context, id string) (*Session, error) {
	doc, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if !doc.Exists() {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var session Session
	if err := doc.DataTo(&session); err != nil {
		return nil, err
	}
	session.ID = doc.Ref.ID

	return &session, nil
}

// List retrieves recent run sessions, ordered by start time descending
func (s *FirestoreStore) List(ctx context.Context, limit int) ([]*Session, error) {
	query := s.client.Collection(s.collection).OrderBy("startedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var sessions []*Session
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var session Session
		if err := doc.DataTo(&session); err != nil {
			return nil, err
		}
		session.ID = doc.Ref.ID

		sessions = append(sessions, &session)
	}

	return sessions, nil
}
