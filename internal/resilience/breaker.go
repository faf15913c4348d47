package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker position for one target class.
type State int

// Breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

// String implements fmt.Stringer for logging and metric labels.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes one breaker.
type BreakerConfig struct {
	// Threshold is the failure count within Window that opens the circuit.
	Threshold int
	// Window is the rolling period failures are counted over.
	Window time.Duration
	// Cooldown is the initial open duration; it doubles on repeated trips.
	Cooldown time.Duration
	// MaxCooldown caps the doubling.
	MaxCooldown time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 5 * time.Minute
	}
	return c
}

// Breaker is the failure-isolation state machine for one target class. No
// caller bypasses it to reach the network directly.
type Breaker struct {
	mu sync.Mutex

	cfg          BreakerConfig
	state        State
	failures     int
	windowStart  time.Time
	openedAt     time.Time
	cooldown     time.Duration
	trialPending bool

	now          func() time.Time
	onTransition func(State)
}

// NewBreaker builds a closed breaker. onTransition may be nil.
func NewBreaker(cfg BreakerConfig, now func() time.Time, onTransition func(State)) *Breaker {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		cfg:          cfg,
		cooldown:     cfg.Cooldown,
		now:          now,
		onTransition: onTransition,
	}
}

// State returns the current state, applying any due open->half-open move.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a request may proceed. In the half-open state exactly
// one trial is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case Open:
		return false
	case HalfOpen:
		if b.trialPending {
			return false
		}
		b.trialPending = true
		return true
	default:
		return true
	}
}

// RecordSuccess feeds a successful attempt back into the state machine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.trialPending = false
		b.cooldown = b.cfg.Cooldown
		b.failures = 0
		b.transition(Closed)
	default:
		b.failures = 0
	}
}

// RecordFailure feeds a failed attempt back into the state machine and
// reports whether this failure tripped the circuit open.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case HalfOpen:
		// The trial failed: reopen with a doubled cool-down.
		b.trialPending = false
		b.cooldown = minDuration(b.cooldown*2, b.cfg.MaxCooldown)
		b.openedAt = now
		b.transition(Open)
		return true
	case Open:
		return false
	default:
		if b.failures == 0 || now.Sub(b.windowStart) > b.cfg.Window {
			b.windowStart = now
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.openedAt = now
			b.transition(Open)
			return true
		}
		return false
	}
}

// maybeHalfOpen moves an open breaker to half-open once the cool-down has
// elapsed. Caller holds the lock.
func (b *Breaker) maybeHalfOpen() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		b.trialPending = false
		b.transition(HalfOpen)
	}
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if b.onTransition != nil {
		b.onTransition(next)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
