package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
)

func init() {
	metrics.Init()
}

func TestPoolBoundsConcurrentSessions(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Size: 2, AcquireTimeout: 20 * time.Millisecond})
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, leads.ErrPoolExhausted)

	p.Release(s1)
	s3, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(s2)
	p.Release(s3)
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Size: 1, AcquireTimeout: time.Minute})
	defer p.Close()

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPoolRetiresSessionsPastUseBudget(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Size: 1, SessionMaxUses: 2, AcquireTimeout: time.Second})
	defer p.Close()

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(first)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second, "session under budget is recycled")
	p.Release(second)

	third, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, second, third, "session at budget is retired")
	p.Release(third)
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://www.google.com/maps/search/dentists+austin%2C+tx",
		SearchURL("dentists", "austin, tx"),
	)
	require.Equal(t,
		"https://www.google.com/maps/search/coffee+shops",
		SearchURL("coffee shops", ""),
	)
}
