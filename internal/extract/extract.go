// Package extract pulls contact details out of fetched website bodies
// and scores leads on field completeness.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leadscout/leadscout/internal/leads"
)

var (
	emailRe     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	instagramRe = regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/[a-zA-Z0-9_.]+`)
	facebookRe  = regexp.MustCompile(`(?i)https?://(?:www\.)?facebook\.com/[a-zA-Z0-9_.]+`)
	twitterRe   = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter\.com|x\.com)/[a-zA-Z0-9_]+`)
	tiktokRe    = regexp.MustCompile(`(?i)https?://(?:www\.)?tiktok\.com/@[a-zA-Z0-9_.]+`)
)

// Contacts scans a page body for an email address and social profile
// links. It never fails: an unparseable page falls back to a raw
// regex pass, and absent fields stay empty.
func Contacts(body []byte) leads.SocialLinks {
	found := fromText(string(body))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return found
	}

	// Anchor hrefs catch profiles the raw scan misses, e.g. links
	// assembled without a scheme match or mailto: addresses.
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if found.Email == "" {
			if addr, ok := strings.CutPrefix(href, "mailto:"); ok {
				if m := emailRe.FindString(addr); m != "" {
					found.Email = m
				}
			}
		}
		if found.Instagram == "" {
			found.Instagram = instagramRe.FindString(href)
		}
		if found.Facebook == "" {
			found.Facebook = facebookRe.FindString(href)
		}
		if found.Twitter == "" {
			found.Twitter = twitterRe.FindString(href)
		}
		if found.TikTok == "" {
			found.TikTok = tiktokRe.FindString(href)
		}
		return found.Email == "" || found.Instagram == "" ||
			found.Facebook == "" || found.Twitter == "" || found.TikTok == ""
	})
	return found
}

func fromText(text string) leads.SocialLinks {
	return leads.SocialLinks{
		Email:     emailRe.FindString(text),
		Instagram: instagramRe.FindString(text),
		Facebook:  facebookRe.FindString(text),
		Twitter:   twitterRe.FindString(text),
		TikTok:    tiktokRe.FindString(text),
	}
}

// Apply copies extracted contact fields onto a lead, keeping any
// values already present.
func Apply(lead *leads.Lead, found leads.SocialLinks) {
	if lead.Email == "" {
		lead.Email = found.Email
	}
	if lead.Instagram == "" {
		lead.Instagram = found.Instagram
	}
	if lead.Facebook == "" {
		lead.Facebook = found.Facebook
	}
	if lead.Twitter == "" {
		lead.Twitter = found.Twitter
	}
	if lead.TikTok == "" {
		lead.TikTok = found.TikTok
	}
}
