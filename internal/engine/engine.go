// Package engine orchestrates a lead job end to end: cache check,
// map discovery, structured-API fallback, bounded enrichment fan-out,
// and aggregation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadscout/leadscout/internal/aggregate"
	"github.com/leadscout/leadscout/internal/browser"
	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/extract"
	"github.com/leadscout/leadscout/internal/fetch"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/places"
	"github.com/leadscout/leadscout/internal/proxy"
	"github.com/leadscout/leadscout/internal/resilience"
)

// discoveryTarget keys the breaker protecting the map provider.
const discoveryTarget = "maps.google.com"

// Config carries the per-job knobs the engine derives its wiring from.
type Config struct {
	DefaultMaxResults  int
	EnrichConcurrency  int
	FallbackRatio      float64
	RandomUARatio      float64
	JobTimeout         time.Duration
	DiscoveryTimeout   time.Duration
	CacheTTL           time.Duration
	Retry              *resilience.RetryPolicy
	Breaker            resilience.BreakerConfig
	Fetch              fetch.Config
	ProxyProbeURL      string
	ProxyProbeTimeout  time.Duration
	ProxyProbeInterval time.Duration
	FallbackAPIKey     string
	FallbackBaseURL    string
	FallbackTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultMaxResults <= 0 {
		c.DefaultMaxResults = 20
	}
	if c.EnrichConcurrency <= 0 {
		c.EnrichConcurrency = 15
	}
	if c.FallbackRatio <= 0 || c.FallbackRatio > 1 {
		c.FallbackRatio = 0.5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 6 * time.Hour
	}
	if c.ProxyProbeURL == "" {
		c.ProxyProbeURL = "https://httpbin.org/ip"
	}
	if c.ProxyProbeTimeout <= 0 {
		c.ProxyProbeTimeout = 10 * time.Second
	}
	return c
}

// Engine runs search jobs against shared process-wide resources (the
// browser pool and the cache); everything identity- or stats-scoped
// is built fresh per job.
type Engine struct {
	cfg    Config
	pool   *browser.Pool
	cache  leads.Cache
	clock  leads.Clock
	ids    leads.IDGenerator
	logger *zap.Logger

	// Wiring seams, replaced in tests.
	newDiscoverer func(rot *identity.Rotator, log *zap.Logger) leads.Discoverer
	newFetcher    func(rot *identity.Rotator, ex *resilience.Executor, stats *leads.JobStats, log *zap.Logger) leads.PageFetcher
	newFallback   func(apiKey string, log *zap.Logger) leads.FallbackProvider
}

// New builds an Engine over the shared pool and cache.
func New(cfg Config, pool *browser.Pool, store leads.Cache, clk leads.Clock, ids leads.IDGenerator, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		pool:   pool,
		cache:  store,
		clock:  clk,
		ids:    ids,
		logger: logger,
	}
	e.newDiscoverer = func(rot *identity.Rotator, log *zap.Logger) leads.Discoverer {
		return browser.NewDiscoverer(e.pool, rot, cfg.DiscoveryTimeout, log)
	}
	e.newFetcher = func(rot *identity.Rotator, ex *resilience.Executor, stats *leads.JobStats, log *zap.Logger) leads.PageFetcher {
		return fetch.NewClient(cfg.Fetch, rot, ex, e.cache, stats, log)
	}
	e.newFallback = func(apiKey string, log *zap.Logger) leads.FallbackProvider {
		var opts []places.Option
		if cfg.FallbackBaseURL != "" {
			opts = append(opts, places.WithBaseURL(cfg.FallbackBaseURL))
		}
		if cfg.FallbackTimeout > 0 {
			opts = append(opts, places.WithHTTPClient(&http.Client{Timeout: cfg.FallbackTimeout}))
		}
		return places.NewClient(apiKey, log, opts...)
	}
	return e
}

// statsObserver feeds executor events into a job's stats block.
type statsObserver struct {
	stats *leads.JobStats
}

func (o statsObserver) OnAttempt(string) { o.stats.AddAttempt() }
func (o statsObserver) OnRetry(string)   { o.stats.AddRetry() }
func (o statsObserver) OnTrip(string)    { o.stats.AddCircuitTrip() }

type sourcedCandidate struct {
	cand   leads.Candidate
	source leads.Source
}

// Run executes one search job. Per-candidate failures degrade that
// lead only; the job itself fails only when neither scraping nor the
// fallback produced a single candidate.
func (e *Engine) Run(ctx context.Context, req leads.SearchRequest) (leads.Result, error) {
	if req.BusinessType == "" || req.Location == "" {
		return leads.Result{}, errors.New("business_type and location are required")
	}
	max := req.MaxResults
	if max <= 0 {
		max = e.cfg.DefaultMaxResults
	}

	jobID, err := e.ids.NewID()
	if err != nil {
		return leads.Result{}, fmt.Errorf("generate job id: %w", err)
	}
	log := e.logger.With(
		zap.String("job_id", jobID),
		zap.String("business_type", req.BusinessType),
		zap.String("location", req.Location),
		zap.Int("max_results", max),
	)
	stats := leads.NewJobStats()
	start := e.clock.Now()

	jobKey := cache.Key("job", req.BusinessType, req.Location, strconv.Itoa(max))
	if batch, ok := e.cachedBatch(ctx, jobKey); ok {
		stats.AddCacheHit()
		stats.SetDurationMs(e.clock.Now().Sub(start).Milliseconds())
		log.Info("serving cached batch", zap.Int("leads", len(batch)))
		metrics.ObserveJob("cached")
		return leads.Result{Success: true, Leads: batch, Total: len(batch), Stats: stats.Snapshot()}, nil
	}
	stats.AddCacheMiss()

	if e.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
		defer cancel()
	}

	rot, executor := e.jobWiring(ctx, req, stats, log)
	discoverer := e.newDiscoverer(rot, log)
	fetcher := e.newFetcher(rot, executor, stats, log)

	apiKey := req.FallbackAPIKey
	if apiKey == "" {
		apiKey = e.cfg.FallbackAPIKey
	}
	fallback := e.newFallback(apiKey, log)

	pool, derr := e.discover(ctx, executor, discoverer, fallback, req, max, stats, log)
	if len(pool) == 0 {
		stats.SetDurationMs(e.clock.Now().Sub(start).Milliseconds())
		metrics.ObserveJob("failed")
		if derr != nil {
			return leads.Result{Stats: stats.Snapshot()}, fmt.Errorf("job %s: %w", jobID, derr)
		}
		return leads.Result{Stats: stats.Snapshot()}, fmt.Errorf("job %s: no candidates found: %w", jobID, leads.ErrDiscoveryFailed)
	}

	enriched := e.enrichAll(ctx, fetcher, pool, stats)
	out := aggregate.Merge(enriched, max)
	for _, l := range out {
		metrics.ObserveLead(string(l.Source))
	}

	// Partial batches from a canceled job are returned but never
	// cached, so the next request redoes the work.
	if ctx.Err() == nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := e.cache.Put(ctx, jobKey, raw, e.cfg.CacheTTL); err != nil {
				log.Warn("caching batch failed", zap.Error(err))
			}
		}
	}

	stats.SetDurationMs(e.clock.Now().Sub(start).Milliseconds())
	metrics.ObserveJob("success")
	log.Info("job complete",
		zap.Int("leads", len(out)),
		zap.Int64("duration_ms", stats.Snapshot().DurationMs),
	)
	return leads.Result{Success: true, Leads: out, Total: len(out), Stats: stats.Snapshot()}, nil
}

// jobWiring builds the identity rotation and resilience layer for one
// job, starting proxy health monitoring when the request carries
// proxies.
func (e *Engine) jobWiring(ctx context.Context, req leads.SearchRequest, stats *leads.JobStats, log *zap.Logger) (*identity.Rotator, *resilience.Executor) {
	var src identity.ProxySource
	if len(req.Proxies) > 0 {
		pp, err := proxy.NewPool(req.Proxies)
		if err != nil {
			log.Warn("ignoring proxy list", zap.Error(err))
		} else {
			mon := proxy.NewMonitor(pp, &proxy.HTTPProber{
				ProbeURL: e.cfg.ProxyProbeURL,
				Timeout:  e.cfg.ProxyProbeTimeout,
			}, e.cfg.ProxyProbeInterval, log)
			go mon.Run(ctx)
			src = pp
		}
	}
	rot := identity.NewRotator(nil, e.cfg.RandomUARatio, src)
	executor := resilience.NewExecutor(e.cfg.Retry, e.cfg.Breaker, statsObserver{stats: stats}, log)
	return rot, executor
}

// discover collects the candidate pool: scraping first, then the
// structured API when scraping is broken or came up short.
func (e *Engine) discover(
	ctx context.Context,
	executor *resilience.Executor,
	discoverer leads.Discoverer,
	fallback leads.FallbackProvider,
	req leads.SearchRequest,
	max int,
	stats *leads.JobStats,
	log *zap.Logger,
) ([]sourcedCandidate, error) {
	discoStart := time.Now()
	var scraped []leads.Candidate
	derr := executor.Do(ctx, discoveryTarget, func(ctx context.Context) error {
		var err error
		scraped, err = discoverer.Discover(ctx, req.BusinessType, req.Location, max)
		return err
	})
	metrics.ObserveDiscovery(time.Since(discoStart))
	if derr != nil {
		stats.AddFailure(failureKind(derr))
		log.Warn("discovery failed", zap.Error(derr))
	}

	pool := make([]sourcedCandidate, 0, max)
	for _, c := range scraped {
		pool = append(pool, sourcedCandidate{cand: c, source: leads.SourceScraped})
	}

	if derr != nil || float64(len(scraped)) < e.cfg.FallbackRatio*float64(max) {
		filled, ferr := fallback.Lookup(ctx, req.BusinessType, req.Location, max)
		if ferr != nil {
			stats.AddFailure("fallback")
			log.Warn("fallback unavailable", zap.Error(ferr))
		} else {
			stats.AddFallback()
			metrics.ObserveFallback()
			log.Info("fallback supplied candidates",
				zap.Int("scraped", len(scraped)),
				zap.Int("fallback", len(filled)),
			)
			for _, c := range filled {
				pool = append(pool, sourcedCandidate{cand: c, source: leads.SourceFallbackAPI})
			}
		}
	}
	return pool, derr
}

// enrichAll fans enrichment out over the candidate pool, bounded by
// the enrichment concurrency. Workers never return errors; a failed
// fetch just leaves that lead unenriched.
func (e *Engine) enrichAll(ctx context.Context, fetcher leads.PageFetcher, pool []sourcedCandidate, stats *leads.JobStats) []leads.Lead {
	out := make([]leads.Lead, len(pool))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EnrichConcurrency)
	for i := range pool {
		g.Go(func() error {
			out[i] = e.enrich(gctx, fetcher, pool[i], stats)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) enrich(ctx context.Context, fetcher leads.PageFetcher, sc sourcedCandidate, stats *leads.JobStats) leads.Lead {
	start := time.Now()
	lead := leads.Lead{Candidate: sc.cand, Source: sc.source}

	if lead.Website != "" && ctx.Err() == nil {
		page, err := fetcher.Fetch(ctx, lead.Website)
		if err != nil {
			stats.AddFailure(failureKind(err))
		} else {
			extract.Apply(&lead, extract.Contacts(page.Body))
		}
	}

	lead.QualityScore = extract.Score(lead)
	stats.RecordQuality(lead.QualityScore)
	lead.ProcessingTimeMs = time.Since(start).Milliseconds()
	metrics.ObserveEnrich(lead.Website, time.Since(start))
	return lead
}

func (e *Engine) cachedBatch(ctx context.Context, key string) ([]leads.Lead, bool) {
	raw, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var batch []leads.Lead
	if err := json.Unmarshal(raw, &batch); err != nil {
		// A corrupt entry should not poison the key for its whole TTL.
		_ = e.cache.Invalidate(ctx, key)
		return nil, false
	}
	return batch, true
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, leads.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, leads.ErrDiscoveryFailed):
		return "discovery"
	default:
		return "fetch"
	}
}
