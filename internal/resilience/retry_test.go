package resilience

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffSequenceMonotonicBeforeJitter(t *testing.T) {
	t.Parallel()

	base := 250 * time.Millisecond
	maxDelay := 5 * time.Second
	p := NewRetryPolicy(5, base, maxDelay)

	var prev time.Duration
	for attempt := 0; attempt < 8; attempt++ {
		want := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
		if want > maxDelay {
			want = maxDelay
		}
		got := p.exponentialDelay(attempt)
		require.Equal(t, want, got, "attempt %d", attempt)
		require.GreaterOrEqual(t, got, prev, "pre-jitter sequence must be non-decreasing")
		prev = got
	}
}

func TestBackoffBoundedByCap(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(10, 250*time.Millisecond, 2*time.Second)
	for attempt := 0; attempt < 20; attempt++ {
		d := p.Backoff(attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestShouldRetryClassification(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, time.Second)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"rate limited", &StatusError{Code: 429, URL: "https://a.example"}, true},
		{"server error", &StatusError{Code: 503, URL: "https://a.example"}, true},
		{"not found", &StatusError{Code: 404, URL: "https://a.example"}, false},
		{"auth failure", &StatusError{Code: 401, URL: "https://a.example"}, false},
		{"permanent mark", Permanent(errors.New("bad url")), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"generic network flake", errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, p.ShouldRetry(tc.err, 0))
		})
	}
}

func TestShouldRetryStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	err := &StatusError{Code: 500, URL: "https://a.example"}
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3))
}
