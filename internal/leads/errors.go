package leads

import "errors"

// Failure kinds surfaced by the engine. Callers classify with errors.Is.
var (
	// ErrPoolExhausted means no browser session became free within the
	// acquire timeout. The pool never grows past its configured size.
	ErrPoolExhausted = errors.New("browser pool exhausted")

	// ErrDiscoveryFailed means the map provider blocked or challenged the
	// session, or returned no parseable listings.
	ErrDiscoveryFailed = errors.New("discovery failed")

	// ErrFetchFailed means a website fetch failed after the resilience
	// layer gave up.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrCircuitOpen is returned without any network attempt while a
	// target's breaker is cooling down.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrFallbackUnavailable means the structured API could not serve:
	// no key configured, or the provider errored.
	ErrFallbackUnavailable = errors.New("fallback unavailable")

	// ErrCacheMiss is returned by cache lookups that found nothing live.
	ErrCacheMiss = errors.New("cache miss")
)
