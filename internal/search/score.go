package search

import "strings"

// Scoring constants. The entity bonuses dominate by design: a document with
// the searched name in its title outranks any keyword-only match, and a
// document that never surfaces the name in title or excerpt is assumed not to
// be about that entity.
const (
	baseScale             = 100
	defaultBase           = 50
	entityTitleBonus      = 200
	entityExcerptBonus    = 100
	entityAbsencePenalty  = 50
	titleKeywordBonus     = 30
	excerptKeywordBonus   = 15
	passingMentionPenalty = 20

	// ScoreCap bounds the final relevance score. It leaves headroom for
	// several stacked entity-name bonuses on top of the scaled base.
	ScoreCap = 1000
)

// scoreCandidate computes the relevance score for one candidate document
// against the tokenized query. native is the index's text-match strength in
// [0,1]; hasNative is false for documents that arrived from outside the local
// index, which then start from the default base.
//
// The order of operations is deliberate: entity-name bonuses first, then
// keyword-location bonuses, then the passing-mention penalty, then the clamp.
func scoreCandidate(title, excerpt string, queryTerms []string, native float64, hasNative bool) float64 {
	score := defaultBase * 1.0
	if hasNative {
		score = native * baseScale
	}

	titleLower := strings.ToLower(title)
	excerptLower := strings.ToLower(excerpt)

	for _, name := range EntityCandidates(queryTerms) {
		switch {
		case strings.Contains(titleLower, name):
			score += entityTitleBonus
		case strings.Contains(excerptLower, name):
			score += entityExcerptBonus
		default:
			score -= entityAbsencePenalty
		}
	}

	titleMatched := false
	for _, term := range queryTerms {
		if strings.Contains(titleLower, term) {
			score += titleKeywordBonus
			titleMatched = true
		}
	}
	excerptMatched := false
	if !titleMatched {
		for _, term := range queryTerms {
			if strings.Contains(excerptLower, term) {
				score += excerptKeywordBonus
				excerptMatched = true
			}
		}
	}

	// A term that only appears deep in body text is a passing mention and
	// should rank low.
	if !titleMatched && !excerptMatched {
		score -= passingMentionPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > ScoreCap {
		score = ScoreCap
	}
	return score
}
