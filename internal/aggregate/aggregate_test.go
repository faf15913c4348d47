package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/leads"
)

func lead(name, addr string, score int, source leads.Source) leads.Lead {
	return leads.Lead{
		Candidate:    leads.Candidate{Name: name, Address: addr},
		QualityScore: score,
		Source:       source,
	}
}

func TestMergeDeduplicatesByNameAndAddress(t *testing.T) {
	t.Parallel()

	out := Merge([]leads.Lead{
		lead("Example Dental", "1 Main St", 5, leads.SourceScraped),
		lead("  example   DENTAL ", "1 main st", 8, leads.SourceScraped),
	}, 0)

	require.Len(t, out, 1)
	require.Equal(t, 8, out[0].QualityScore)
	require.Equal(t, leads.SourceScraped, out[0].Source)
}

func TestMergeFallsBackToPhoneWhenNoAddress(t *testing.T) {
	t.Parallel()

	a := leads.Lead{
		Candidate:    leads.Candidate{Name: "Corner Cafe", Phone: "(512) 555-0100"},
		QualityScore: 4,
		Source:       leads.SourceScraped,
	}
	// Same number, different formatting.
	b := leads.Lead{
		Candidate:    leads.Candidate{Name: "Corner Cafe", Phone: "512.555.0100"},
		QualityScore: 6,
		Source:       leads.SourceScraped,
	}

	out := Merge([]leads.Lead{a, b}, 0)
	require.Len(t, out, 1)
	require.Equal(t, 6, out[0].QualityScore)
}

func TestMergeMarksCrossSourceCollisions(t *testing.T) {
	t.Parallel()

	out := Merge([]leads.Lead{
		lead("Example Dental", "1 Main St", 5, leads.SourceScraped),
		lead("Example Dental", "1 Main St", 8, leads.SourceFallbackAPI),
	}, 0)

	require.Len(t, out, 1)
	require.Equal(t, 8, out[0].QualityScore)
	require.Equal(t, leads.SourceMerged, out[0].Source)
}

func TestMergeKeepsEarlierOnTie(t *testing.T) {
	t.Parallel()

	first := lead("Example Dental", "1 Main St", 5, leads.SourceScraped)
	first.Email = "first@example.com"
	second := lead("Example Dental", "1 Main St", 5, leads.SourceScraped)
	second.Email = "second@example.com"

	out := Merge([]leads.Lead{first, second}, 0)
	require.Len(t, out, 1)
	require.Equal(t, "first@example.com", out[0].Email)
}

func TestMergeSortsByQualityThenRating(t *testing.T) {
	t.Parallel()

	low := lead("A", "1", 3, leads.SourceScraped)
	highLowRating := lead("B", "2", 8, leads.SourceScraped)
	highLowRating.Rating = 3.9
	highHighRating := lead("C", "3", 8, leads.SourceScraped)
	highHighRating.Rating = 4.9

	out := Merge([]leads.Lead{low, highLowRating, highHighRating}, 0)
	require.Equal(t, []string{"C", "B", "A"}, []string{out[0].Name, out[1].Name, out[2].Name})
}

func TestMergeTruncatesToMax(t *testing.T) {
	t.Parallel()

	in := []leads.Lead{
		lead("A", "1", 9, leads.SourceScraped),
		lead("A", "1", 7, leads.SourceScraped),
		lead("B", "2", 6, leads.SourceScraped),
		lead("C", "3", 5, leads.SourceScraped),
		lead("D", "4", 4, leads.SourceScraped),
		lead("E", "5", 3, leads.SourceScraped),
		lead("F", "6", 2, leads.SourceScraped),
	}

	out := Merge(in, 5)
	require.Len(t, out, 5)
	require.Equal(t, "A", out[0].Name)
	require.Equal(t, 9, out[0].QualityScore)
	for _, l := range out {
		require.NotEqual(t, "F", l.Name, "lowest-ranked lead should be truncated")
	}
}
