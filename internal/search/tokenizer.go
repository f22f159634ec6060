package search

import (
	"strings"
	"unicode"
)

// stopWords are generic English terms removed during tokenisation.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "do": {}, "not": {}, "no": {}, "so": {},
}

// civicStopWords are generic civic and question terms excluded when inferring
// entity names from a query. A query token longer than three characters that
// survives this list is treated as a candidate entity name (typically a person
// name). The list is hand-tuned, not a principled NLP technique: it will
// misclassify some topic words as names and vice versa.
var civicStopWords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "about": {},
	"does": {}, "explain": {}, "latest": {}, "recent": {}, "news": {},
	"policy": {}, "policies": {}, "campaign": {}, "campaigns": {},
	"senator": {}, "senators": {}, "representative": {}, "representatives": {},
	"congress": {}, "congressman": {}, "congresswoman": {}, "legislature": {},
	"election": {}, "elections": {}, "district": {}, "government": {},
	"federal": {}, "state": {}, "vote": {}, "votes": {}, "voting": {},
	"voted": {}, "bill": {}, "bills": {}, "legislation": {}, "amendment": {},
	"candidate": {}, "candidates": {}, "political": {}, "politics": {},
	"position": {}, "positions": {}, "stance": {}, "record": {},
	"issue": {}, "issues": {}, "house": {}, "senate": {}, "party": {},
	"democrat": {}, "democrats": {}, "republican": {}, "republicans": {},
	"committee": {}, "hearing": {}, "session": {},
}

// Tokenize lower-cases text, splits on non-alphanumeric boundaries, and drops
// stop-words and single-character fragments. No stemming is applied: the
// scorer matches keywords and names literally.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// EntityCandidates returns the query terms likely to be proper names: longer
// than three characters and absent from the civic stop-list.
func EntityCandidates(terms []string) []string {
	var names []string
	for _, term := range terms {
		if len(term) <= 3 {
			continue
		}
		if _, isCivic := civicStopWords[term]; isCivic {
			continue
		}
		names = append(names, term)
	}
	return names
}
