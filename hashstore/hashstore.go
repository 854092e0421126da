// CLAUDE:SUMMARY SQLite key -> content-hash store with an atomic check-and-set that can commit a downstream write with the hash update.
// Package hashstore remembers the last content hash seen for each key.
//
// The one mutating read, CheckAndSet, compares and upserts inside a single
// transaction. An optional onChange hook runs inside that transaction after
// the upsert: if the hook fails the upsert is rolled back, so the stored
// hash never runs ahead of the downstream store.
//
// The store is opened with a single connection. Hooks must not call back
// into the same Store.
package hashstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/dbopen"
	"github.com/hazyhaar/flowkeeper/faults"
)

// Schema is the hash table DDL. One row per key; writes are upserts.
const Schema = `
CREATE TABLE IF NOT EXISTS hashes (
	key        TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	meta       TEXT,
	updated_at INTEGER NOT NULL
);
`

const upsertSQL = `
INSERT INTO hashes (key, hash, meta, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	hash = excluded.hash,
	meta = excluded.meta,
	updated_at = excluded.updated_at`

// Store is the hash store handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the hash database at path.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	all = append(all, dbopen.WithMaxOpenConns(1))

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, fmt.Errorf("hashstore: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// New wraps an already open database, applying Schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, faults.Unavailable(fmt.Errorf("hashstore: schema: %w", err))
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored hash for key. ok is false when key was never set.
func (s *Store) Get(ctx context.Context, key string) (hash string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT hash FROM hashes WHERE key = ?`, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, faults.Unavailable(fmt.Errorf("hashstore: get %q: %w", key, err))
	}
	return hash, true, nil
}

// Set stores hash (and optional meta) for key unconditionally.
func (s *Store) Set(ctx context.Context, key, hash, meta string) error {
	_, err := s.db.ExecContext(ctx, upsertSQL, key, hash, nullable(meta), s.now().UnixMilli())
	if err != nil {
		return faults.Unavailable(fmt.Errorf("hashstore: set %q: %w", key, err))
	}
	return nil
}

// CheckAndSet reports whether hash differs from the stored hash for key.
// When it does, the new hash is upserted and onChange (if non-nil) runs
// before commit; an onChange error rolls the upsert back and is returned
// unchanged. Calling it twice with the same hash returns true then false.
func (s *Store) CheckAndSet(ctx context.Context, key, hash, meta string, onChange func(context.Context) error) (bool, error) {
	var changed bool
	var hookErr error

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		changed = false
		hookErr = nil

		var stored string
		err := tx.QueryRowContext(ctx, `SELECT hash FROM hashes WHERE key = ?`, key).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("select: %w", err)
		case stored == hash:
			return nil
		}

		if _, err := tx.ExecContext(ctx, upsertSQL, key, hash, nullable(meta), s.now().UnixMilli()); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if onChange != nil {
			if err := onChange(ctx); err != nil {
				hookErr = err
				return err
			}
		}
		changed = true
		return nil
	})
	if hookErr != nil {
		return false, hookErr
	}
	if err != nil {
		return false, faults.Unavailable(fmt.Errorf("hashstore: check %q: %w", key, err))
	}
	return changed, nil
}

// IsChanged hashes content and runs CheckAndSet without a hook. It mutates
// the store: a second call with the same content returns false.
func (s *Store) IsChanged(ctx context.Context, key, content string) (bool, error) {
	return s.CheckAndSet(ctx, key, canonical.ComputeHash(content), "", nil)
}

// Forget removes key so that the next sighting counts as new.
func (s *Store) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hashes WHERE key = ?`, key); err != nil {
		return faults.Unavailable(fmt.Errorf("hashstore: forget %q: %w", key, err))
	}
	return nil
}

// Count returns the number of tracked keys.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hashes`).Scan(&n); err != nil {
		return 0, faults.Unavailable(fmt.Errorf("hashstore: count: %w", err))
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
