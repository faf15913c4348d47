package sqlitecache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/leads"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	expires := time.Now().Add(time.Hour)

	require.NoError(t, s.Put(context.Background(), "k", []byte("value"), expires))

	got, gotExpires, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	require.WithinDuration(t, expires, gotExpires, time.Second)
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	expires := time.Now().Add(time.Hour)

	require.NoError(t, s.Put(context.Background(), "k", []byte("old"), expires))
	require.NoError(t, s.Put(context.Background(), "k", []byte("new"), expires))

	got, _, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestMissOnAbsentKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, _, err := s.Get(context.Background(), "absent")
	require.ErrorIs(t, err, leads.ErrCacheMiss)
}

func TestExpiredRowIsMissAndDeleted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(context.Background(), "k", []byte("value"), now.Add(time.Minute)))

	now = now.Add(2 * time.Minute)
	_, _, err := s.Get(context.Background(), "k")
	require.ErrorIs(t, err, leads.ErrCacheMiss)

	// The lazy delete removed the row, so a purge finds nothing.
	n, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(context.Background(), "stale", []byte("a"), now.Add(time.Minute)))
	require.NoError(t, s.Put(context.Background(), "fresh", []byte("b"), now.Add(time.Hour)))

	now = now.Add(10 * time.Minute)
	n, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, _, err = s.Get(context.Background(), "fresh")
	require.NoError(t, err)
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Put(context.Background(), "k", []byte("value"), time.Now().Add(time.Hour)))
	require.NoError(t, s.Invalidate(context.Background(), "k"))

	_, _, err := s.Get(context.Background(), "k")
	require.ErrorIs(t, err, leads.ErrCacheMiss)
}
