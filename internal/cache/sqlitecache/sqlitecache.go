// Package sqlitecache is the default persistent cache tier, backed by
// a single-table SQLite database.
package sqlitecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/leads"
)

var _ cache.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);
`

// Store persists cache entries in a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (and if needed creates) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite cache schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get implements cache.Store. Expired rows are deleted and reported
// as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		value   []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, leads.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache entry: %w", err)
	}
	expiresAt := time.Unix(expires, 0)
	if !s.now().Before(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, time.Time{}, leads.ErrCacheMiss
	}
	return value, expiresAt, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Invalidate implements cache.Store.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired implements cache.Store.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return n, nil
}

// Close implements cache.Store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite cache: %w", err)
	}
	return nil
}
