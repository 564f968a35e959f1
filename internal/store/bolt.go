package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
)

var bucketRecords = []byte("records")

// BoltStore implements Store using BoltDB, one key per asset id
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file at path
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w (bolt file lock on %s)", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, id string) (*record.Record, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRecords).Get([]byte(id)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, wrapBoltErr(err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return decode(id, data)
}

func (s *BoltStore) Put(ctx context.Context, r *record.Record) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		data, err := encodeUpdate(b.Get([]byte(r.AssetID)), r)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.AssetID), data)
	})
	return wrapBoltErr(err)
}

func (s *BoltStore) CreateIfAbsent(ctx context.Context, r *record.Record) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(r.AssetID)) != nil {
			return nil
		}
		data, err := record.Marshal(r)
		if err != nil {
			return err
		}
		created = true
		return b.Put([]byte(r.AssetID), data)
	})
	if err != nil {
		return false, wrapBoltErr(err)
	}
	return created, nil
}

func (s *BoltStore) List(ctx context.Context) ([]*record.Record, error) {
	records := []*record.Record{}
	var errs []error
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			r, err := decode(string(k), v)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, wrapBoltErr(err)
	}
	return records, errors.Join(errs...)
}

func (s *BoltStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRecords)
		return err
	})
	return wrapBoltErr(err)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// putRaw stores bytes without validation, for corruption tests
func (s *BoltStore) putRaw(id string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(id), data)
	})
}

func wrapBoltErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
