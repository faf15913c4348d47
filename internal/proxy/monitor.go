package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/metrics"
)

// Prober issues one reachability check through a proxy.
type Prober interface {
	Probe(ctx context.Context, proxy *url.URL) error
}

// HTTPProber probes by issuing a GET to a known endpoint through the proxy.
type HTTPProber struct {
	ProbeURL string
	Timeout  time.Duration
}

// Probe performs the reachability check.
func (p *HTTPProber) Probe(ctx context.Context, proxy *url.URL) error {
	client := &http.Client{
		Timeout: p.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxy),
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe via %s: %w", proxy.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe via %s: status %d", proxy.Host, resp.StatusCode)
	}
	return nil
}

// Monitor re-validates proxy health on a fixed interval. It runs in the
// background and never blocks foreground work; its failure accounting is
// independent of the circuit breaker, which tracks targets rather than
// proxies.
type Monitor struct {
	pool     *Pool
	prober   Prober
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor builds a Monitor over the given pool.
func NewMonitor(pool *Pool, prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{pool: pool, prober: prober, interval: interval, logger: logger}
}

// Run checks all proxies immediately and then on every interval tick until
// the context finishes.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckAll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every proxy in parallel and applies the outcomes.
func (m *Monitor) CheckAll(ctx context.Context) {
	p := m.pool
	p.mu.Lock()
	records := make([]*Record, len(p.records))
	copy(records, p.records)
	p.mu.Unlock()

	if len(records) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec *Record) {
			defer wg.Done()
			err := m.prober.Probe(ctx, rec.URL)
			p.markResult(rec, err == nil, time.Now().UTC())
			if err != nil && ctx.Err() == nil {
				m.logger.Debug("proxy probe failed",
					zap.String("proxy", rec.URL.Host),
					zap.Error(err),
				)
			}
		}(rec)
	}
	wg.Wait()

	counts := p.Counts()
	for health, n := range counts {
		metrics.SetProxyCount(string(health), n)
	}
	m.logger.Info("proxy health check complete",
		zap.Int("healthy", counts[Healthy]),
		zap.Int("degraded", counts[Degraded]),
		zap.Int("dead", counts[Dead]),
	)
}
