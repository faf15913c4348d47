package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
)

// Observer receives per-attempt accounting, typically a job's stats block.
type Observer interface {
	OnAttempt(target string)
	OnRetry(target string)
	OnTrip(target string)
}

// NopObserver discards all events.
type NopObserver struct{}

// OnAttempt implements Observer.
func (NopObserver) OnAttempt(string) {}

// OnRetry implements Observer.
func (NopObserver) OnRetry(string) {}

// OnTrip implements Observer.
func (NopObserver) OnTrip(string) {}

/// Executor is the single path to the network: breaker admission per target
// class, then a bounded retry loop with jittered backoff.
type Executor struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	retry      *RetryPolicy
	breakerCfg BreakerConfig
	observer   Observer
	now        func() time.Time
	logger     *zap.Logger
}

// NewExecutor builds an Executor. observer may be nil.
func NewExecutor(retry *RetryPolicy, breakerCfg BreakerConfig, observer Observer, logger *zap.Logger) *Executor {
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		breakers:   make(map[string]*Breaker),
		retry:      retry,
		breakerCfg: breakerCfg,
		observer:   observer,
		now:        time.Now,
		logger:     logger,
	}
}

// BreakerState exposes the current state for a target class.
func (e *Executor) BreakerState(target string) State {
	return e.breaker(target).State()
}

// Do runs op under the target's breaker with retries on transient failures.
// Exhausted retries surface the terminal error; an open circuit surfaces
// leads.ErrCircuitOpen without touching the network.
func (e *Executor) Do(ctx context.Context, target string, op func(context.Context) error) error {
	br := e.breaker(target)

	for attempt := 0; ; attempt++ {
		if !br.Allow() {
			return fmt.Errorf("%s: %w", target, leads.ErrCircuitOpen)
		}

		e.observer.OnAttempt(target)
		err := op(ctx)
		if err == nil {
			br.RecordSuccess()
			return nil
		}
		if br.RecordFailure() {
			e.observer.OnTrip(target)
			e.logger.Warn("circuit opened",
				zap.String("target", target),
				zap.Error(err),
			)
		}

		if !e.retry.ShouldRetry(err, attempt) {
			return err
		}

		e.observer.OnRetry(target)
		metrics.ObserveRetry(target)
		delay := e.retry.Backoff(attempt)
		e.logger.Debug("retrying after backoff",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// breaker returns the breaker for target, creating it on first use.
func (e *Executor) breaker(target string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	br, ok := e.breakers[target]
	if !ok {
		br = NewBreaker(e.breakerCfg, e.now, func(s State) {
			metrics.ObserveCircuitTransition(target, s.String())
		})
		e.breakers[target] = br
	}
	return br
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
