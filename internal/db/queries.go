package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/colorbook/internal/errors"
)

const (
	kvSelect = `SELECT value FROM kv WHERE key = ?`
	kvUpsert = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	kvDelete = `DELETE FROM kv WHERE key = ?`
)

// KV stores opaque values by key in the kv table. The history ring and the
// last narration artifact are both kept here.
type KV struct {
	db  *sql.DB
	now func() time.Time
}

// NewKV wraps a database opened with Init.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db, now: time.Now}
}

// Get returns the value under key and whether it was present.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	switch err := s.db.QueryRowContext(ctx, kvSelect, key).Scan(&value); {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.NewInternal(err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, kvUpsert, key, value, s.now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, kvDelete, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
