// Package places is the structured-API fallback: when scraping is
// blocked or comes up short, candidates are pulled from the Google
// Places Text Search API instead.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/leads"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

var _ leads.FallbackProvider = (*Client)(nil)

// Client calls the Places Text Search endpoint. It is a plain JSON
// API client, so it sits outside the scraping stack: no browser, no
// identity rotation, no politeness gate.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option adjusts a Client.
type Option func(*Client)

// WithBaseURL points the client at an alternate endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient builds a fallback client. An empty API key is allowed;
// Lookup then reports leads.ErrFallbackUnavailable.
func NewClient(apiKey string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name             string  `json:"name"`
		FormattedAddress string  `json:"formatted_address"`
		FormattedPhone   string  `json:"formatted_phone_number"`
		Website          string  `json:"website"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
		PlaceID          string  `json:"place_id"`
	} `json:"results"`
}

// Lookup implements leads.FallbackProvider.
func (c *Client) Lookup(ctx context.Context, businessType, location string, limit int) ([]leads.Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no api key configured: %w", leads.ErrFallbackUnavailable)
	}

	query := strings.TrimSpace(businessType)
	if location != "" {
		query += " in " + location
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build places request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w: %w", err, leads.ErrFallbackUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places http status %d: %w", resp.StatusCode, leads.ErrFallbackUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read places response: %w", err)
	}

	var parsed textSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode places response: %w", err)
	}
	switch parsed.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("places status %s: %w", parsed.Status, leads.ErrFallbackUnavailable)
	}

	out := make([]leads.Candidate, 0, len(parsed.Results))
	for _, p := range parsed.Results {
		if p.Name == "" {
			continue
		}
		out = append(out, leads.Candidate{
			Name:        p.Name,
			Address:     p.FormattedAddress,
			Phone:       p.FormattedPhone,
			Website:     p.Website,
			Rating:      p.Rating,
			ReviewCount: p.UserRatingsTotal,
			PlaceID:     p.PlaceID,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	c.logger.Info("fallback lookup complete",
		zap.String("query", query),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
