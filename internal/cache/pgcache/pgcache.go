// Package pgcache is the Postgres-backed persistent cache tier, for
// deployments where several instances share one cache.
package pgcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/leads"
)

var _ cache.Store = (*Store)(nil)

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool behind the cache tier.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists cache entries in a cache_entries table.
//
// Expected schema:
//
//	CREATE TABLE cache_entries (
//		key TEXT PRIMARY KEY,
//		value BYTEA NOT NULL,
//		expires_at TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	pool execQuerier
	now  func() time.Time
}

// New connects a pgx pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool execQuerier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		value     []byte
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, leads.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache entry: %w", err)
	}
	if !s.now().Before(expiresAt) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
		return nil, time.Time{}, leads.ErrCacheMiss
	}
	return value, expiresAt, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Invalidate implements cache.Store.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired implements cache.Store.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= $1`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close implements cache.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
