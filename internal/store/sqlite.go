package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	asset_id   TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore implements Store on a SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	lock   *LockFile
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the database file at path. The store holds an
// exclusive lock on path+".lock" until Close, so a second process cannot
// write the same records concurrently.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lock, err := AcquireLockFile(path + ".lock")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// Single writer; see the concurrency model of the sync engine.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, lock: lock}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*record.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE asset_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrapSQLErr(err)
	}
	return decode(id, data)
}

func (s *SQLiteStore) Put(ctx context.Context, r *record.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapSQLErr(err)
	}
	defer tx.Rollback()

	var prev []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM records WHERE asset_id = ?`, r.AssetID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s.wrapSQLErr(err)
	}

	data, err := encodeUpdate(prev, r)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (asset_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		r.AssetID, data, time.Now().UnixMilli())
	if err != nil {
		return s.wrapSQLErr(err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, r *record.Record) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	data, err := record.Marshal(r)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (asset_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO NOTHING`,
		r.AssetID, data, time.Now().UnixMilli())
	if err != nil {
		return false, s.wrapSQLErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*record.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT asset_id, data FROM records ORDER BY asset_id`)
	if err != nil {
		return nil, s.wrapSQLErr(err)
	}
	defer rows.Close()

	records := []*record.Record{}
	var errs []error
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		r, err := decode(id, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, errors.Join(errs...)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	return s.wrapSQLErr(err)
}

func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return errors.Join(s.db.Close(), s.lock.Release())
}

// wrapSQLErr maps failures on a store closed while a call was in flight
func (s *SQLiteStore) wrapSQLErr(err error) error {
	if err != nil && s.closed.Load() {
		return ErrClosed
	}
	return err
}
