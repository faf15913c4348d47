// Package metrics exposes Prometheus collectors for the lead engine.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal             *prometheus.CounterVec
	leadsTotal            *prometheus.CounterVec
	discoveryDuration     prometheus.Histogram
	enrichDuration        *prometheus.HistogramVec
	cacheOpsTotal         *prometheus.CounterVec
	circuitTransitions    *prometheus.CounterVec
	retriesTotal          *prometheus.CounterVec
	fallbackTotal         prometheus.Counter
	browserSessionsInUse  prometheus.Gauge
	proxyHealthGauge      *prometheus.GaugeVec
	politenessDelaySecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_jobs_total",
				Help: "Total number of search jobs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		leadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_leads_total",
				Help: "Total leads produced, labeled by source.",
			},
			[]string{"source"},
		)

		discoveryDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_discovery_duration_seconds",
				Help:    "Histogram of map-provider discovery latencies.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
			},
		)

		enrichDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_enrich_duration_seconds",
				Help:    "Histogram of website enrichment latencies, labeled by host.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"host"},
		)

		cacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_cache_ops_total",
				Help: "Cache operations, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		circuitTransitions = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_circuit_transitions_total",
				Help: "Circuit breaker state transitions, labeled by target and state.",
			},
			[]string{"target", "state"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_retries_total",
				Help: "Retried attempts, labeled by target.",
			},
			[]string{"target"},
		)

		fallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_fallback_invocations_total",
				Help: "Structured-API fallback invocations.",
			},
		)

		browserSessionsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_browser_sessions_in_use",
				Help: "Browser sessions currently checked out of the pool.",
			},
		)

		proxyHealthGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leadscout_proxies",
				Help: "Proxy counts by health state.",
			},
			[]string{"health"},
		)

		politenessDelaySecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_politeness_delay_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given outcome.
func ObserveJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLead increments the lead counter for the given source.
func ObserveLead(source string) {
	leadsTotal.WithLabelValues(source).Inc()
}

// ObserveDiscovery records one discovery round-trip.
func ObserveDiscovery(duration time.Duration) {
	discoveryDuration.Observe(duration.Seconds())
}

// ObserveEnrich records one enrichment fetch.
func ObserveEnrich(host string, duration time.Duration) {
	enrichDuration.WithLabelValues(SanitizeHost(host)).Observe(duration.Seconds())
}

// ObserveCacheOp records a cache hit or miss for a tier.
func ObserveCacheOp(tier, result string) {
	cacheOpsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveCircuitTransition records a breaker state change.
func ObserveCircuitTransition(target, state string) {
	circuitTransitions.WithLabelValues(target, state).Inc()
}

// ObserveRetry records a retried attempt against a target.
func ObserveRetry(target string) {
	retriesTotal.WithLabelValues(target).Inc()
}

// ObserveFallback records one fallback invocation.
func ObserveFallback() {
	fallbackTotal.Inc()
}

// IncBrowserSessions increments the checked-out session gauge.
func IncBrowserSessions() {
	browserSessionsInUse.Inc()
}

// DecBrowserSessions decrements the checked-out session gauge.
func DecBrowserSessions() {
	browserSessionsInUse.Dec()
}

// SetProxyCount reports how many proxies are in the given health state.
func SetProxyCount(health string, n int) {
	proxyHealthGauge.WithLabelValues(health).Set(float64(n))
}

// ObservePolitenessDelay records the duration of a per-host wait.
func ObservePolitenessDelay(host string, duration time.Duration) {
	politenessDelaySecond.WithLabelValues(SanitizeHost(host)).Observe(duration.Seconds())
}
