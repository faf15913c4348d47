package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/leads"
)

func fullLead() leads.Lead {
	return leads.Lead{
		Candidate: leads.Candidate{
			Name:        "Example Dental",
			Address:     "1 Main St",
			Phone:       "+1 512 555 0100",
			Website:     "https://example-dental.com",
			Rating:      4.8,
			ReviewCount: 120,
		},
		Email:     "hello@example-dental.com",
		Instagram: "https://instagram.com/exampledental",
	}
}

func TestScoreWeights(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead leads.Lead
		want int
	}{
		{"empty", leads.Lead{}, 0},
		{"name only", leads.Lead{Candidate: leads.Candidate{Name: "A"}}, 2},
		{"website only", leads.Lead{Candidate: leads.Candidate{Website: "https://a.example"}}, 3},
		{"email only", leads.Lead{Email: "a@a.example"}, 3},
		{"phone and address", leads.Lead{Candidate: leads.Candidate{Phone: "1", Address: "x"}}, 3},
		{"social only", leads.Lead{TikTok: "https://tiktok.com/@a"}, 1},
		{"everything capped at ten", fullLead(), 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Score(tc.lead))
		})
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	t.Parallel()

	base := leads.Lead{Candidate: leads.Candidate{Name: "A", Phone: "1"}}
	scored := Score(base)

	withMore := base
	withMore.Email = "a@a.example"
	require.Greater(t, Score(withMore), scored)

	withMore.Website = "https://a.example"
	require.GreaterOrEqual(t, Score(withMore), scored)
	require.LessOrEqual(t, Score(withMore), 10)
}

func TestScoreSocialCountsOnce(t *testing.T) {
	t.Parallel()

	one := leads.Lead{Instagram: "https://instagram.com/a"}
	all := leads.Lead{
		Instagram: "https://instagram.com/a",
		Facebook:  "https://facebook.com/a",
		Twitter:   "https://x.com/a",
		TikTok:    "https://tiktok.com/@a",
	}
	require.Equal(t, Score(one), Score(all))
}
