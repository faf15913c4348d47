// Package leads defines core types shared across subsystems.
package leads

import "time"

// Source identifies which pipeline produced a lead.
type Source string

// Source values carried on every lead for provenance accounting.
const (
	SourceScraped     Source = "scraped"
	SourceFallbackAPI Source = "fallback_api"
	SourceMerged      Source = "merged"
)

// SearchRequest captures one discovery+enrichment job. It is immutable once
// the engine starts the job.
type SearchRequest struct {
	BusinessType   string   `json:"business_type"`
	Location       string   `json:"location"`
	MaxResults     int      `json:"max_results"`
	Proxies        []string `json:"proxies,omitempty"`
	FallbackAPIKey string   `json:"fallback_api_key,omitempty"`
}

// Candidate is a business discovered on the map provider before website
// enrichment. Immutable after creation.
type Candidate struct {
	Name        string  `json:"name"`
	Address     string  `json:"address,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Website     string  `json:"website,omitempty"`
	PlaceID     string  `json:"place_id,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
}

// Lead is a candidate after enrichment and scoring.
type Lead struct {
	Candidate

	Email            string `json:"email,omitempty"`
	Instagram        string `json:"instagram,omitempty"`
	Facebook         string `json:"facebook,omitempty"`
	Twitter          string `json:"twitter,omitempty"`
	TikTok           string `json:"tiktok,omitempty"`
	QualityScore     int    `json:"quality_score"`
	Source           Source `json:"source"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// SocialLinks holds the fields extracted from a fetched website. Absence of
// any field is expected, not an error.
type SocialLinks struct {
	Email     string
	Instagram string
	Facebook  string
	Twitter   string
	TikTok    string
}

// Empty reports whether extraction found nothing.
func (s SocialLinks) Empty() bool {
	return s == SocialLinks{}
}

// RawPage is the body returned by a website fetch.
type RawPage struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	FromCache  bool
}

// Result is the completed batch returned to the caller.
type Result struct {
	Success bool      `json:"success"`
	Leads   []Lead    `json:"leads"`
	Total   int       `json:"total"`
	Stats   *JobStats `json:"stats,omitempty"`
}
