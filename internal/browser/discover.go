package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/leads"
)

const mapsSearchBase = "https://www.google.com/maps/search/"

// listingCard mirrors the object shape produced by extractScript.
type listingCard struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Website     string  `json:"website"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
}

// blockedScript reports whether the page is a consent wall, a captcha
// challenge, or a rate-limit interstitial instead of search results.
const blockedScript = `(() => {
	if (document.querySelector('#captcha-form, form[action*="consent"], iframe[src*="recaptcha"]')) {
		return true;
	}
	const text = document.body ? document.body.innerText : '';
	return /unusual traffic|not a robot|sorry\.{3}/i.test(text);
})()`

// countScript counts result cards using the selector ladder the feed
// renders under different experiments.
const countScript = `(() => {
	const sels = ['[role="article"]', '[data-result-index]', 'div[jsaction*="mouseover"]', '.hfpxzc'];
	for (const s of sels) {
		const n = document.querySelectorAll(s).length;
		if (n > 0) return n;
	}
	return 0;
})()`

const scrollScript = `(() => {
	const feed = document.querySelector('[role="main"]');
	if (feed) feed.scrollTo(0, feed.scrollHeight);
})()`

// extractScript pulls candidate fields off each result card.
const extractScript = `(limit => {
	const sels = ['[role="article"]', '[data-result-index]', 'div[jsaction*="mouseover"]', '.hfpxzc'];
	let cards = [];
	for (const s of sels) {
		cards = Array.from(document.querySelectorAll(s));
		if (cards.length > 0) break;
	}
	const clean = t => (t || '').replace(/\s+/g, ' ').trim();
	return cards.slice(0, limit).map(card => {
		const nameEl = card.querySelector('.qBF1Pd, .NrDZNb, .fontHeadlineSmall');
		const name = clean(nameEl ? nameEl.textContent : card.getAttribute('aria-label'));

		const websiteEl = card.querySelector('a[data-value="Website"]');
		const website = websiteEl ? websiteEl.href : '';

		let rating = 0, reviewCount = 0;
		const ratingEl = card.querySelector('.MW4etd');
		if (ratingEl) rating = parseFloat(ratingEl.textContent) || 0;
		const reviewsEl = card.querySelector('.UY7F9');
		if (reviewsEl) {
			const m = reviewsEl.textContent.match(/[\d,]+/);
			if (m) reviewCount = parseInt(m[0].replace(/,/g, ''), 10) || 0;
		}

		let address = '', phone = '';
		for (const line of card.querySelectorAll('.W4Efsd')) {
			const t = clean(line.textContent);
			const pm = t.match(/\(?\+?[\d][\d\s().-]{7,}\d/);
			if (pm && !phone) phone = clean(pm[0]);
			const parts = t.split('·').map(clean).filter(Boolean);
			for (const part of parts) {
				if (!address && /\d/.test(part) && !/^\(?\+?[\d\s().-]+$/.test(part) && !/^\d+(\.\d+)?$/.test(part)) {
					address = part;
				}
			}
		}
		return { name, address, phone, website, rating, reviewCount };
	}).filter(c => c.name);
})`

// Discoverer runs map searches on pooled sessions. One Discoverer is
// built per job so each carries that job's identity rotation.
type Discoverer struct {
	pool    *Pool
	rotator *identity.Rotator
	timeout time.Duration
	logger  *zap.Logger
}

var _ leads.Discoverer = (*Discoverer)(nil)

// NewDiscoverer wires a job-scoped discoverer over the shared pool.
func NewDiscoverer(pool *Pool, rotator *identity.Rotator, timeout time.Duration, logger *zap.Logger) *Discoverer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{pool: pool, rotator: rotator, timeout: timeout, logger: logger}
}

// SearchURL builds the maps query URL for a business type and location.
func SearchURL(businessType, location string) string {
	query := strings.TrimSpace(businessType + " " + location)
	return mapsSearchBase + url.QueryEscape(query)
}

// Discover implements leads.Discoverer: navigate the search feed,
// scroll until limit results are loaded or the feed stops growing,
// and extract candidate fields from the cards. A blocked or empty
// feed is leads.ErrDiscoveryFailed; retry policy lives with the
// caller.
func (d *Discoverer) Discover(ctx context.Context, businessType, location string, limit int) ([]leads.Candidate, error) {
	if limit <= 0 {
		limit = 20
	}

	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Release(session)

	taskCtx, cancel := context.WithTimeout(session.Context(), d.timeout)
	defer cancel()
	// Session contexts hang off the allocator, not the job; propagate
	// the job's cancellation by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	ua := d.userAgent()
	target := SearchURL(businessType, location)
	d.logger.Debug("starting discovery",
		zap.String("url", target),
		zap.Int("limit", limit),
	)

	var blocked bool
	err = chromedp.Run(taskCtx,
		networkSetup(ua),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Evaluate(blockedScript, &blocked),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate map search: %w", err)
	}
	if blocked {
		return nil, fmt.Errorf("challenge page served: %w", leads.ErrDiscoveryFailed)
	}

	if err := d.scrollFeed(taskCtx, limit); err != nil {
		return nil, err
	}

	var cards []listingCard
	if err := chromedp.Run(taskCtx,
		chromedp.Evaluate(fmt.Sprintf("%s(%d)", extractScript, limit), &cards),
	); err != nil {
		return nil, fmt.Errorf("extract listings: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no listings rendered: %w", leads.ErrDiscoveryFailed)
	}

	out := make([]leads.Candidate, 0, len(cards))
	for _, c := range cards {
		out = append(out, leads.Candidate{
			Name:        c.Name,
			Address:     c.Address,
			Phone:       c.Phone,
			Website:     c.Website,
			Rating:      c.Rating,
			ReviewCount: c.ReviewCount,
		})
	}
	d.logger.Info("discovery complete",
		zap.String("business_type", businessType),
		zap.String("location", location),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// scrollFeed paginates the results feed until limit cards are present
// or two consecutive scrolls load nothing new.
func (d *Discoverer) scrollFeed(ctx context.Context, limit int) error {
	prev, stale := 0, 0
	for i := 0; i < 12; i++ {
		var count int
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(countScript, &count),
		); err != nil {
			return fmt.Errorf("count listings: %w", err)
		}
		if count >= limit {
			return nil
		}
		if count == prev {
			stale++
			if stale >= 2 {
				return nil
			}
		} else {
			stale = 0
		}
		prev = count
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollScript, nil),
			chromedp.Sleep(400*time.Millisecond),
		); err != nil {
			return fmt.Errorf("scroll feed: %w", err)
		}
	}
	return nil
}

func (d *Discoverer) userAgent() string {
	if d.rotator == nil {
		return ""
	}
	return d.rotator.Next().UserAgent
}

func networkSetup(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
