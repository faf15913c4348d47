package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive breaker time deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(clk *fakeClock) *Breaker {
	return NewBreaker(BreakerConfig{
		Threshold:   5,
		Window:      time.Minute,
		Cooldown:    30 * time.Second,
		MaxCooldown: 2 * time.Minute,
	}, clk.Now, nil)
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)

	for i := 0; i < 4; i++ {
		require.False(t, br.RecordFailure())
		require.Equal(t, Closed, br.State())
	}
	require.True(t, br.RecordFailure(), "fifth failure must trip the circuit")
	require.Equal(t, Open, br.State())
	require.False(t, br.Allow(), "open circuit must fail fast")
}

func TestBreakerHalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)
	for i := 0; i < 5; i++ {
		br.RecordFailure()
	}

	clk.Advance(29 * time.Second)
	require.False(t, br.Allow(), "cool-down not yet elapsed")

	clk.Advance(time.Second)
	require.Equal(t, HalfOpen, br.State())
	require.True(t, br.Allow(), "first trial admitted")
	require.False(t, br.Allow(), "second concurrent trial rejected")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)
	for i := 0; i < 5; i++ {
		br.RecordFailure()
	}
	clk.Advance(30 * time.Second)
	require.True(t, br.Allow())

	br.RecordSuccess()
	require.Equal(t, Closed, br.State())
	require.True(t, br.Allow())
}

func TestBreakerTrialFailureDoublesCooldown(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)
	for i := 0; i < 5; i++ {
		br.RecordFailure()
	}

	clk.Advance(30 * time.Second)
	require.True(t, br.Allow())
	require.True(t, br.RecordFailure(), "failed trial reopens")

	// Cool-down doubled to 60s: still open at +59s, half-open at +60s.
	clk.Advance(59 * time.Second)
	require.False(t, br.Allow())
	clk.Advance(time.Second)
	require.True(t, br.Allow())

	// Another failed trial doubles to 120s, the configured cap.
	require.True(t, br.RecordFailure())
	clk.Advance(119 * time.Second)
	require.False(t, br.Allow())
	clk.Advance(time.Second)
	require.True(t, br.Allow())

	// The cap holds: a further failed trial stays at 120s.
	require.True(t, br.RecordFailure())
	clk.Advance(120 * time.Second)
	require.True(t, br.Allow())
}

func TestBreakerRollingWindowResetsCount(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)

	for i := 0; i < 4; i++ {
		br.RecordFailure()
	}
	clk.Advance(2 * time.Minute)

	// Stale failures no longer count toward the threshold.
	require.False(t, br.RecordFailure())
	require.Equal(t, Closed, br.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	br := newTestBreaker(clk)

	for i := 0; i < 4; i++ {
		br.RecordFailure()
	}
	br.RecordSuccess()
	for i := 0; i < 4; i++ {
		require.False(t, br.RecordFailure())
	}
	require.Equal(t, Closed, br.State())
}
