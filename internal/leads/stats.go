package leads

import "sync"

// JobStats accumulates counters for the lifetime of one job. Enrichment tasks
// update it concurrently; it is discarded when the job completes.
type JobStats struct {
	mu sync.Mutex

	Attempts            int            `json:"attempts"`
	CacheHits           int            `json:"cache_hits"`
	CacheMisses         int            `json:"cache_misses"`
	CircuitTrips        int            `json:"circuit_trips"`
	FallbackInvocations int            `json:"fallback_invocations"`
	Retries             int            `json:"retries"`
	WebsiteScrapes      int            `json:"website_scrapes"`
	FailuresByKind      map[string]int `json:"failures_by_kind,omitempty"`
	HighQuality         int            `json:"high_quality"`
	MediumQuality       int            `json:"medium_quality"`
	LowQuality          int            `json:"low_quality"`
	DurationMs          int64          `json:"duration_ms"`
}

// NewJobStats constructs an empty stats block.
func NewJobStats() *JobStats {
	return &JobStats{FailuresByKind: make(map[string]int)}
}

// AddAttempt records one outbound attempt.
func (s *JobStats) AddAttempt() {
	s.mu.Lock()
	s.Attempts++
	s.mu.Unlock()
}

// AddCacheHit records a cache hit.
func (s *JobStats) AddCacheHit() {
	s.mu.Lock()
	s.CacheHits++
	s.mu.Unlock()
}

// AddCacheMiss records a cache miss.
func (s *JobStats) AddCacheMiss() {
	s.mu.Lock()
	s.CacheMisses++
	s.mu.Unlock()
}

// AddCircuitTrip records a breaker transition to open.
func (s *JobStats) AddCircuitTrip() {
	s.mu.Lock()
	s.CircuitTrips++
	s.mu.Unlock()
}

// AddFallback records one structured-API invocation.
func (s *JobStats) AddFallback() {
	s.mu.Lock()
	s.FallbackInvocations++
	s.mu.Unlock()
}

// AddRetry records one retried attempt.
func (s *JobStats) AddRetry() {
	s.mu.Lock()
	s.Retries++
	s.mu.Unlock()
}

// AddWebsiteScrape records a successful enrichment fetch.
func (s *JobStats) AddWebsiteScrape() {
	s.mu.Lock()
	s.WebsiteScrapes++
	s.mu.Unlock()
}

// AddFailure records a failure bucketed by kind.
func (s *JobStats) AddFailure(kind string) {
	s.mu.Lock()
	if s.FailuresByKind == nil {
		s.FailuresByKind = make(map[string]int)
	}
	s.FailuresByKind[kind]++
	s.mu.Unlock()
}

// RecordQuality buckets a final lead score into the quality breakdown.
func (s *JobStats) RecordQuality(score int) {
	s.mu.Lock()
	switch {
	case score >= 7:
		s.HighQuality++
	case score >= 4:
		s.MediumQuality++
	default:
		s.LowQuality++
	}
	s.mu.Unlock()
}

// SetDurationMs records the job's wall-clock duration.
func (s *JobStats) SetDurationMs(ms int64) {
	s.mu.Lock()
	s.DurationMs = ms
	s.mu.Unlock()
}

// Snapshot returns a copy safe to serialize after concurrent updates stop
// being a concern for the caller.
func (s *JobStats) Snapshot() *JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &JobStats{
		Attempts:            s.Attempts,
		CacheHits:           s.CacheHits,
		CacheMisses:         s.CacheMisses,
		CircuitTrips:        s.CircuitTrips,
		FallbackInvocations: s.FallbackInvocations,
		Retries:             s.Retries,
		WebsiteScrapes:      s.WebsiteScrapes,
		HighQuality:         s.HighQuality,
		MediumQuality:       s.MediumQuality,
		LowQuality:          s.LowQuality,
		DurationMs:          s.DurationMs,
	}
	if len(s.FailuresByKind) > 0 {
		out.FailuresByKind = make(map[string]int, len(s.FailuresByKind))
		for k, v := range s.FailuresByKind {
			out.FailuresByKind[k] = v
		}
	}
	return out
}
