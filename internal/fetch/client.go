// Package fetch is the HTTP side of enrichment: identity-rotated,
// politeness-limited website fetches behind the cache and the
// resilience layer.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/resilience"
)

// Config controls a job's fetch client.
type Config struct {
	Timeout      time.Duration
	BodyCap      int
	CacheTTL     time.Duration
	MinHostGap   time.Duration
	MaxHostGap   time.Duration
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.BodyCap <= 0 {
		c.BodyCap = 64 * 1024
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 6 * time.Hour
	}
	if c.MinHostGap <= 0 {
		c.MinHostGap = time.Second
	}
	if c.MaxHostGap < c.MinHostGap {
		c.MaxHostGap = 3 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 300
	}
	return c
}

var _ leads.PageFetcher = (*Client)(nil)

// Client fetches website bodies for enrichment. One Client is built
// per job so identity rotation and stats stay job-scoped; the cache
// behind it is shared across jobs.
type Client struct {
	cfg      Config
	base     *colly.Collector
	rotator  *identity.Rotator
	executor *resilience.Executor
	cache    leads.Cache
	stats    *leads.JobStats
	gate     *hostGate
	logger   *zap.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewClient wires a fetch client over the shared cache and a
// job-scoped executor and rotator.
func NewClient(cfg Config, rotator *identity.Rotator, executor *resilience.Executor, store leads.Cache, stats *leads.JobStats, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(colly.Async(false))
	base.MaxBodySize = cfg.BodyCap
	base.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:        cfg,
		base:       base,
		rotator:    rotator,
		executor:   executor,
		cache:      store,
		stats:      stats,
		gate:       newHostGate(cfg.MinHostGap, cfg.MaxHostGap),
		logger:     logger,
		transports: make(map[string]*http.Transport),
	}
}

// Fetch implements leads.PageFetcher: cache first, then a polite,
// identity-rotated GET through the resilience layer.
func (c *Client) Fetch(ctx context.Context, pageURL string) (leads.RawPage, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Hostname() == "" {
		return leads.RawPage{}, resilience.Permanent(fmt.Errorf("unusable website url %q", pageURL))
	}
	host := parsed.Hostname()

	key := cache.Key("page", pageURL)
	if c.cache != nil {
		if body, err := c.cache.Get(ctx, key); err == nil {
			c.addCacheHit()
			return leads.RawPage{
				URL:        pageURL,
				StatusCode: http.StatusOK,
				Body:       body,
				FromCache:  true,
			}, nil
		}
		c.addCacheMiss()
	}

	delay, err := c.gate.wait(ctx, host)
	if err != nil {
		return leads.RawPage{}, err
	}
	metrics.ObservePolitenessDelay(host, delay)

	var page leads.RawPage
	err = c.executor.Do(ctx, host, func(ctx context.Context) error {
		var opErr error
		page, opErr = c.fetchOnce(ctx, pageURL)
		return opErr
	})
	if err != nil {
		return leads.RawPage{}, fmt.Errorf("%w: %s: %w", leads.ErrFetchFailed, pageURL, err)
	}

	if c.cache != nil && len(page.Body) > 0 {
		if err := c.cache.Put(ctx, key, page.Body, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("caching fetched page failed",
				zap.String("url", pageURL),
				zap.Error(err),
			)
		}
	}
	if c.stats != nil {
		c.stats.AddWebsiteScrape()
	}
	return page, nil
}

// fetchOnce runs a single colly visit on a cloned collector with a
// fresh identity.
func (c *Client) fetchOnce(ctx context.Context, pageURL string) (leads.RawPage, error) {
	id := c.identity()

	collector := c.base.Clone()
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = c.cfg.BodyCap
	collector.SetRequestTimeout(c.cfg.Timeout)
	if id.UserAgent != "" {
		collector.UserAgent = id.UserAgent
	}
	collector.WithTransport(c.transportFor(id.Proxy))

	var (
		page     leads.RawPage
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		page = leads.RawPage{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &resilience.StatusError{Code: r.StatusCode, URL: pageURL}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return leads.RawPage{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return leads.RawPage{}, fetchErr
		}
		if err != nil {
			return leads.RawPage{}, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		return page, nil
	}
}

func (c *Client) identity() identity.Identity {
	if c.rotator == nil {
		return identity.Identity{}
	}
	return c.rotator.Next()
}

// transportFor pools one transport per proxy so connections are
// reused across requests sharing an egress.
func (c *Client) transportFor(proxy *url.URL) *http.Transport {
	key := ""
	if proxy != nil {
		key = proxy.String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.transports[key]; ok {
		return tr
	}
	tr := newHTTPTransport(proxy, c.cfg.MaxIdleConns)
	c.transports[key] = tr
	return tr
}

func (c *Client) addCacheHit() {
	if c.stats != nil {
		c.stats.AddCacheHit()
	}
}

func (c *Client) addCacheMiss() {
	if c.stats != nil {
		c.stats.AddCacheMiss()
	}
}

func newHTTPTransport(proxy *url.URL, maxIdle int) *http.Transport {
	proxyFunc := http.ProxyFromEnvironment
	if proxy != nil {
		proxyFunc = http.ProxyURL(proxy)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
