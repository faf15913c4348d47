package extract

import "github.com/leadscout/leadscout/internal/leads"

const maxScore = 10

// Score rates a lead 0-10 on field completeness. Website and email
// weigh heaviest since they are what downstream outreach needs.
func Score(l leads.Lead) int {
	score := 0
	if l.Name != "" {
		score += 2
	}
	if l.Website != "" {
		score += 3
	}
	if l.Phone != "" {
		score += 2
	}
	if l.Email != "" {
		score += 3
	}
	if l.Address != "" {
		score++
	}
	if l.Rating > 0 {
		score++
	}
	if l.ReviewCount > 0 {
		score++
	}
	if l.Instagram != "" || l.Facebook != "" || l.Twitter != "" || l.TikTok != "" {
		score++
	}
	if score > maxScore {
		score = maxScore
	}
	return score
}
