package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits on punctuation",
			text: "Senate Passes H.R.1234!",
			want: []string{"senate", "passes", "1234"},
		},
		{
			name: "drops stop words",
			text: "the bill is on its way to the house",
			want: []string{"bill", "way", "house"},
		},
		{
			name: "drops single characters",
			text: "a b c section 2 part q",
			want: []string{"section", "part"},
		},
		{
			name: "empty input",
			text: "   ",
			want: []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokenize(tc.text)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}

func TestTokenizeNoStemming(t *testing.T) {
	got := Tokenize("voting voters voted")
	want := []string{"voting", "voters", "voted"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("terms must be kept literal, no stemming (-want +got):\n%s", diff)
	}
}

func TestEntityCandidates(t *testing.T) {
	terms := Tokenize("what is Jane Doe's stance on tax policy")
	got := EntityCandidates(terms)
	// "jane" and "stance"? "stance" is in the civic stop-list; "what" and
	// "policy" are too; "doe" and "tax" are too short.
	want := []string{"jane"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EntityCandidates mismatch (-want +got):\n%s", diff)
	}
}

func TestEntityCandidatesAllCivicTerms(t *testing.T) {
	terms := Tokenize("latest senate vote on the bill")
	if got := EntityCandidates(terms); len(got) != 0 {
		t.Errorf("expected no entity candidates in a generic civic query, got %v", got)
	}
}
