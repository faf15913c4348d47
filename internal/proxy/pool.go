// Package proxy tracks proxy endpoints and their health.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Health is the reachability state of one proxy.
type Health string

// Health levels. Demotion walks healthy -> degraded -> dead; promotion walks
// back one level per successful probe.
const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded"
	Dead     Health = "dead"
)

// Record holds one proxy endpoint with its health state. The monitor is the
// only writer; the rotator reads through Pool.Pick.
type Record struct {
	URL                 *url.URL
	Health              Health
	LastChecked         time.Time
	ConsecutiveFailures int
}

// Pool owns proxy records and serves selection requests.
type Pool struct {
	mu      sync.Mutex
	records []*Record
	cursor  int
}

// NewPool parses raw proxy addresses into a pool. Addresses without a scheme
// default to http. New proxies start healthy until a probe says otherwise.
func NewPool(rawURLs []string) (*Pool, error) {
	p := &Pool{}
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		p.records = append(p.records, &Record{URL: u, Health: Healthy})
	}
	return p, nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Pick returns the next usable proxy, preferring healthy records and
// accepting degraded ones. It returns nil when nothing usable remains, so
// the caller falls back to a direct connection.
func (p *Pool) Pick() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u := p.pickByHealth(Healthy); u != nil {
		return u
	}
	return p.pickByHealth(Degraded)
}

// pickByHealth round-robins over records in the given state. Caller holds
// the lock.
func (p *Pool) pickByHealth(h Health) *url.URL {
	n := len(p.records)
	for i := 0; i < n; i++ {
		rec := p.records[p.cursor%n]
		p.cursor++
		if rec.Health == h {
			return rec.URL
		}
	}
	return nil
}

// Snapshot returns a copy of all records for observability.
func (p *Pool) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.records))
	for i, rec := range p.records {
		out[i] = *rec
	}
	return out
}

// Counts returns the number of records per health state.
func (p *Pool) Counts() map[Health]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := map[Health]int{Healthy: 0, Degraded: 0, Dead: 0}
	for _, rec := range p.records {
		counts[rec.Health]++
	}
	return counts
}

// markResult applies one probe outcome to a record.
func (p *Pool) markResult(rec *Record, ok bool, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec.LastChecked = at
	if ok {
		rec.ConsecutiveFailures = 0
		rec.Health = promote(rec.Health)
		return
	}
	rec.ConsecutiveFailures++
	if rec.ConsecutiveFailures >= failuresPerDemotion {
		rec.Health = demote(rec.Health)
		rec.ConsecutiveFailures = 0
	}
}

const failuresPerDemotion = 3

func promote(h Health) Health {
	switch h {
	case Dead:
		return Degraded
	default:
		return Healthy
	}
}

func demote(h Health) Health {
	switch h {
	case Healthy:
		return Degraded
	default:
		return Dead
	}
}
