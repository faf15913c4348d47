package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
)

// Store is the persistent tier behind the in-memory LRU. Get reports
// the entry's absolute expiry so a hit can be promoted with its
// remaining lifetime intact. A missing or expired entry is
// leads.ErrCacheMiss.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, expiresAt time.Time, err error)
	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Invalidate(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

var _ leads.Cache = (*Tiered)(nil)

// Tiered is the read-through cache every fetch path goes through:
// memory first, then the persistent store, promoting persistent hits
// into memory. A broken persistent tier degrades to a miss rather
// than failing the read.
type Tiered struct {
	memory *Memory
	store  Store
	logger *zap.Logger
}

// NewTiered combines the memory tier with an optional persistent
// store. A nil store gives a memory-only cache.
func NewTiered(memory *Memory, store Store, logger *zap.Logger) *Tiered {
	if memory == nil {
		memory = NewMemory(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{memory: memory, store: store, logger: logger}
}

// Get implements leads.Cache.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := t.memory.Get(key); ok {
		metrics.ObserveCacheOp("memory", "hit")
		return value, nil
	}
	metrics.ObserveCacheOp("memory", "miss")

	if t.store == nil {
		return nil, leads.ErrCacheMiss
	}

	value, expiresAt, err := t.store.Get(ctx, key)
	if err != nil {
		metrics.ObserveCacheOp("persistent", "miss")
		if errors.Is(err, leads.ErrCacheMiss) {
			return nil, err
		}
		t.logger.Warn("persistent cache read failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persistent tier: %w", leads.ErrCacheMiss)
	}
	metrics.ObserveCacheOp("persistent", "hit")
	t.memory.Put(key, value, expiresAt)
	return value, nil
}

// Put implements leads.Cache. Both tiers receive the entry; a
// persistent write failure is reported after the memory tier is
// already populated.
func (t *Tiered) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	t.memory.Put(key, value, expiresAt)
	if t.store == nil {
		return nil
	}
	if err := t.store.Put(ctx, key, value, expiresAt); err != nil {
		return fmt.Errorf("persistent tier: %w", err)
	}
	return nil
}

// Invalidate implements leads.Cache.
func (t *Tiered) Invalidate(ctx context.Context, key string) error {
	t.memory.Invalidate(key)
	if t.store == nil {
		return nil
	}
	if err := t.store.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("persistent tier: %w", err)
	}
	return nil
}

// PurgeExpired removes expired rows from the persistent tier.
func (t *Tiered) PurgeExpired(ctx context.Context) (int64, error) {
	if t.store == nil {
		return 0, nil
	}
	n, err := t.store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("persistent tier: %w", err)
	}
	return n, nil
}

// Close releases the persistent tier, if any.
func (t *Tiered) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}
