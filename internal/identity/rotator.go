// Package identity selects the (user-agent, proxy) pair presented for each
// outbound request.
package identity

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"sync"
	"sync/atomic"
)

// DefaultFingerprints provides a realistic set of modern desktop browser
// user-agents. Twelve entries keeps rotation diverse without drifting into
// rarely seen strings that stand out in server logs.
var DefaultFingerprints = []string{
	// Chrome Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	// Chrome Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	// Firefox Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0",
	// Firefox Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
	// Safari Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	// Edge Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
}

// Identity is the fingerprint presented for one outbound request. Proxy is
// nil for a direct connection.
type Identity struct {
	UserAgent string
	Proxy     *url.URL
}

// ProxySource supplies a usable proxy, or nil when none are available.
// Selection must never return a dead proxy.
type ProxySource interface {
	Pick() *url.URL
}

// Rotator hands out identities using a weighted mix of random and
// round-robin selection over a fixed fingerprint roster.
type Rotator struct {
	agents      []string
	randomRatio float64
	proxies     ProxySource

	counter atomic.Uint64

	mu    sync.Mutex
	usage map[string]uint64
}

// NewRotator builds a Rotator. An empty roster falls back to
// DefaultFingerprints; randomRatio is clamped to [0,1]. src may be nil when
// the job carries no proxies.
func NewRotator(agents []string, randomRatio float64, src ProxySource) *Rotator {
	if len(agents) == 0 {
		agents = DefaultFingerprints
	}
	copied := make([]string, len(agents))
	copy(copied, agents)
	if randomRatio < 0 {
		randomRatio = 0
	}
	if randomRatio > 1 {
		randomRatio = 1
	}
	return &Rotator{
		agents:      copied,
		randomRatio: randomRatio,
		proxies:     src,
		usage:       make(map[string]uint64),
	}
}

// Next returns the identity for the next outbound request. It is safe for
// concurrent use.
func (r *Rotator) Next() Identity {
	agent := r.nextAgent()

	r.mu.Lock()
	r.usage[agent]++
	r.mu.Unlock()

	id := Identity{UserAgent: agent}
	if r.proxies != nil {
		id.Proxy = r.proxies.Pick()
	}
	return id
}

// Usage returns a copy of the per-fingerprint usage counters. The counters
// exist for observability only.
func (r *Rotator) Usage() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.usage))
	for k, v := range r.usage {
		out[k] = v
	}
	return out
}

func (r *Rotator) nextAgent() string {
	if r.randomRatio > 0 && randFloat() < r.randomRatio {
		return r.randomAgent()
	}
	return r.sequentialAgent()
}

func (r *Rotator) sequentialAgent() string {
	idx := r.counter.Add(1) - 1
	return r.agents[idx%uint64(len(r.agents))]
}

func (r *Rotator) randomAgent() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(r.agents))))
	if err != nil {
		return r.sequentialAgent()
	}
	return r.agents[n.Int64()]
}

func randFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / (1 << 53)
}
