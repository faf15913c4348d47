package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/resilience"
)

func init() {
	metrics.Init()
}

func testConfig() Config {
	return Config{
		Timeout:    5 * time.Second,
		BodyCap:    64 * 1024,
		CacheTTL:   time.Hour,
		MinHostGap: time.Millisecond,
		MaxHostGap: time.Millisecond,
	}
}

func testExecutor(t *testing.T) *resilience.Executor {
	t.Helper()
	return resilience.NewExecutor(
		resilience.NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond),
		resilience.BreakerConfig{Threshold: 50},
		nil,
		zap.NewNop(),
	)
}

func newTestClient(t *testing.T, stats *leads.JobStats) (*Client, *cache.Tiered) {
	t.Helper()
	store := cache.NewTiered(cache.NewMemory(64), nil, nil)
	rot := identity.NewRotator(nil, 0, nil)
	return NewClient(testConfig(), rot, testExecutor(t), store, stats, zap.NewNop()), store
}

func TestFetchReturnsBodyAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>contact hello@biz.example</html>"))
	}))
	defer srv.Close()

	stats := &leads.JobStats{}
	client, _ := newTestClient(t, stats)

	page, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "hello@biz.example")
	require.False(t, page.FromCache)

	// Second fetch is served from cache without touching the server.
	again, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, again.FromCache)
	require.Equal(t, page.Body, again.Body)
	require.EqualValues(t, 1, hits.Load())

	snap := stats.Snapshot()
	require.EqualValues(t, 1, snap.CacheHits)
	require.EqualValues(t, 1, snap.CacheMisses)
	require.EqualValues(t, 1, snap.WebsiteScrapes)
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, nil)

	_, err := client.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, leads.ErrFetchFailed)
	require.EqualValues(t, 1, hits.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, nil)

	page, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", string(page.Body))
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchRejectsUnusableURL(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, nil)

	_, err := client.Fetch(context.Background(), "not a url")
	require.Error(t, err)
	require.True(t, resilience.IsPermanent(err))
}

func TestFetchCapsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BodyCap = 1024
	store := cache.NewTiered(cache.NewMemory(64), nil, nil)
	rot := identity.NewRotator(nil, 0, nil)
	client := NewClient(cfg, rot, testExecutor(t), store, nil, zap.NewNop())

	page, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.LessOrEqual(t, len(page.Body), 1024)
}

func TestFetchSendsRotatedUserAgent(t *testing.T) {
	t.Parallel()

	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, nil)

	_, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	got, _ := agent.Load().(string)
	require.Contains(t, identity.DefaultFingerprints, got)
}
