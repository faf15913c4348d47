// Package aggregate deduplicates and ranks enriched leads before a
// batch is returned.
package aggregate

import (
	"sort"
	"strings"

	"github.com/leadscout/leadscout/internal/leads"
)

// Merge folds duplicate leads together, keeping the higher-scoring
// record per business, then ranks by quality and truncates to max.
// Records arriving from different pipelines that collapse into one
// business are marked merged.
func Merge(in []leads.Lead, max int) []leads.Lead {
	byKey := make(map[string]int, len(in))
	out := make([]leads.Lead, 0, len(in))

	for _, lead := range in {
		key := identityKey(lead)
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, lead)
			continue
		}
		kept := out[idx]
		if lead.QualityScore > kept.QualityScore {
			if lead.Source != kept.Source {
				lead.Source = leads.SourceMerged
			}
			out[idx] = lead
			continue
		}
		if lead.Source != kept.Source {
			kept.Source = leads.SourceMerged
			out[idx] = kept
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].Rating > out[j].Rating
	})

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// identityKey collapses cosmetic differences so the same business
// discovered twice dedupes. Phone stands in when the address is
// missing.
func identityKey(l leads.Lead) string {
	name := normalize(l.Name)
	if addr := normalize(l.Address); addr != "" {
		return name + "|" + addr
	}
	return name + "|" + digits(l.Phone)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
