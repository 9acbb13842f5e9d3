package importService

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/nikhil/doussel/pkg/utils"
)

// Match thresholds on a 0..1 scale.
const (
	MinMatchScore  = 0.6
	AutoMatchScore = 0.95
)

// Candidate is a lease an imported row may belong to.
type Candidate struct {
	ID              string `db:"id"`
	TenantName      string `db:"tenant_name"`
	PropertyAddress string `db:"property_address"`
}

func normalizeWords(s string) []string {
	s = strings.ToLower(utils.FoldAccents(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

var dice = &metrics.SorensenDice{NgramSize: 2}

// fieldScore compares a lease field with every run of search words of the
// same length and keeps the best similarity, so a tenant name buried in a
// longer bank label still scores high.
func fieldScore(search []string, field string) float64 {
	words := normalizeWords(field)
	if len(words) == 0 || len(search) == 0 {
		return 0
	}
	target := strings.Join(words, " ")
	if len(words) >= len(search) {
		return strutil.Similarity(strings.Join(search, " "), target, dice)
	}
	best := 0.0
	for i := 0; i+len(words) <= len(search); i++ {
		window := strings.Join(search[i:i+len(words)], " ")
		if s := strutil.Similarity(window, target, dice); s > best {
			best = s
		}
	}
	return best
}

// BestMatch scores every candidate against text and returns the best one
// with its score, or nil when none reaches MinMatchScore.
func BestMatch(text string, candidates []Candidate) (*Candidate, float64) {
	search := normalizeWords(text)
	var best *Candidate
	bestScore := 0.0
	for i := range candidates {
		c := &candidates[i]
		score := fieldScore(search, c.TenantName)
		if s := fieldScore(search, c.PropertyAddress); s > score {
			score = s
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || bestScore < MinMatchScore {
		return nil, bestScore
	}
	return best, bestScore
}
