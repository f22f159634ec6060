package search

import "testing"

// queryTerms mirrors Tokenize("Jane Doe tax policy"): "doe" and "tax" are too
// short to be entity candidates and "policy" is on the civic stop-list, so
// "jane" is the only inferred entity name.
var queryTerms = []string{"jane", "doe", "tax", "policy"}

func TestScoreEntityInTitle(t *testing.T) {
	// base 0.75*100, +200 entity-in-title, +30 each for jane/doe/tax in title
	got := scoreCandidate("Jane Doe unveils tax plan", "", queryTerms, 0.75, true)
	if want := 365.0; got != want {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScoreEntityInExcerptOnly(t *testing.T) {
	// base 0.5*100, +100 entity-in-excerpt, +15 each for jane/doe/tax in
	// excerpt (no title match, so excerpt keyword bonuses apply)
	got := scoreCandidate("Congress budget update", "Jane Doe criticized the tax proposal", queryTerms, 0.5, true)
	if want := 195.0; got != want {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScoreEntityAbsentIsPenalized(t *testing.T) {
	title := scoreCandidate("Jane Doe unveils tax plan", "", queryTerms, 0.5, true)
	absent := scoreCandidate("Budget debate continues", "Lawmakers argue over spending", queryTerms, 0.5, true)
	if absent >= title {
		t.Errorf("entity-absent doc scored %v, must rank below entity-title doc %v", absent, title)
	}
}

func TestScorePassingMentionClampsToZero(t *testing.T) {
	// base 25, -50 entity absent, -20 passing mention => negative, clamped
	got := scoreCandidate("Budget debate continues", "Lawmakers argue", queryTerms, 0.25, true)
	if got != 0 {
		t.Errorf("score = %v, want 0 (clamped)", got)
	}
}

func TestScoreExcerptBonusSkippedWhenTitleMatches(t *testing.T) {
	// The same terms in both places must count once, at title strength.
	both := scoreCandidate("Jane Doe tax plan", "Jane Doe tax plan details", queryTerms, 1, true)
	titleOnly := scoreCandidate("Jane Doe tax plan", "", queryTerms, 1, true)
	if both != titleOnly {
		t.Errorf("excerpt repetition changed score: %v vs %v", both, titleOnly)
	}
}

func TestScoreCapped(t *testing.T) {
	terms := []string{"montgomery", "blackwell", "harrington", "sutherland", "pemberton"}
	got := scoreCandidate("Montgomery Blackwell Harrington Sutherland Pemberton summit", "", terms, 1, true)
	if got != ScoreCap {
		t.Errorf("score = %v, want capped at %v", got, ScoreCap)
	}
}

func TestScoreDefaultBaseWithoutNativeScore(t *testing.T) {
	// base 50, +200 entity-in-title, +30 title keyword
	got := scoreCandidate("Zzyzx announces run", "", []string{"zzyzx"}, 0, false)
	if want := 280.0; got != want {
		t.Errorf("score = %v, want %v", got, want)
	}
}
