package fetch

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostGate enforces per-host politeness: a rate limiter spaced at the
// minimum gap, plus a random extra delay so request timing does not
// look mechanical.
type hostGate struct {
	minGap time.Duration
	maxGap time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostGate(minGap, maxGap time.Duration) *hostGate {
	return &hostGate{
		minGap:   minGap,
		maxGap:   maxGap,
		limiters: make(map[string]*rate.Limiter),
	}
}

// wait blocks until host may be contacted again and reports how long
// it waited.
func (g *hostGate) wait(ctx context.Context, host string) (time.Duration, error) {
	start := time.Now()
	if err := g.limiter(host).Wait(ctx); err != nil {
		return 0, fmt.Errorf("politeness wait for %s: %w", host, err)
	}
	if jitter := g.jitter(); jitter > 0 {
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("politeness wait for %s: %w", host, ctx.Err())
		case <-timer.C:
		}
	}
	return time.Since(start), nil
}

func (g *hostGate) limiter(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.minGap), 1)
		g.limiters[host] = lim
	}
	return lim
}

func (g *hostGate) jitter() time.Duration {
	span := g.maxGap - g.minGap
	if span <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return span / 2
	}
	return time.Duration(n.Int64())
}
