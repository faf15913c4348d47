// Package browser manages a fixed pool of headless Chrome sessions
// and runs map discovery on them.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
)

// PoolConfig sizes the session pool.
type PoolConfig struct {
	Size           int
	SessionMaxUses int
	AcquireTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Size <= 0 {
		c.Size = 10
	}
	if c.SessionMaxUses <= 0 {
		c.SessionMaxUses = 25
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	return c
}

// Session is one exclusive browser tab. It is valid between Acquire
// and Release and must not be retained afterwards.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	uses   int
}

// Context returns the chromedp context for running actions.
func (s *Session) Context() context.Context { return s.ctx }

// Pool hands out exclusive sessions over a buffered channel. A session
// past its use budget is retired on release and replaced by a fresh
// one, so a pool of N never grows past N live tabs.
type Pool struct {
	cfg         PoolConfig
	allocator   context.Context
	allocCancel context.CancelFunc
	slots       chan *Session

	closeOnce sync.Once
}

// NewPool starts a Chrome allocator and fills the pool. Tabs are
// created lazily on first use by chromedp.
func NewPool(cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	p := &Pool{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		slots:       make(chan *Session, cfg.Size),
	}
	for i := 0; i < cfg.Size; i++ {
		p.slots <- p.newSession()
	}
	return p
}

func (p *Pool) newSession() *Session {
	ctx, cancel := chromedp.NewContext(p.allocator)
	return &Session{ctx: ctx, cancel: cancel}
}

// Acquire checks out a session, waiting at most the configured
// acquire timeout. Exhaustion is leads.ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.slots:
		metrics.IncBrowserSessions()
		return s, nil
	case <-timer.C:
		return nil, fmt.Errorf("no session within %s: %w", p.cfg.AcquireTimeout, leads.ErrPoolExhausted)
	case <-ctx.Done():
		return nil, fmt.Errorf("session wait canceled: %w", ctx.Err())
	}
}

// Release returns a session to the pool, retiring it when its use
// budget is spent.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	metrics.DecBrowserSessions()
	s.uses++
	if s.uses >= p.cfg.SessionMaxUses {
		s.cancel()
		s = p.newSession()
	}
	select {
	case p.slots <- s:
	default:
		// Pool already full (Close drained it); drop the session.
		s.cancel()
	}
}

// Close shuts down every idle session and the allocator. Sessions
// checked out at the time of the call die with the allocator.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for {
			select {
			case s := <-p.slots:
				s.cancel()
			default:
				p.allocCancel()
				return
			}
		}
	})
}
