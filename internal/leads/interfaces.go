package leads

import (
	"context"
	"time"
)

// Discoverer finds candidate businesses on the map provider.
type Discoverer interface {
	Discover(ctx context.Context, businessType, location string, limit int) ([]Candidate, error)
}

// PageFetcher retrieves a website body for enrichment.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// FallbackProvider serves candidates from a structured API when scraping is
// circuit-broken or comes up short.
type FallbackProvider interface {
	Lookup(ctx context.Context, businessType, location string, limit int) ([]Candidate, error)
}

// Cache is the two-tier read-through store used by every fetch path.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
