package search

import (
	"sort"
	"sync"

	"github.com/civicweave/civicdata/internal/corpus"
)

// Candidate is an index match carrying the engine's native text-match score,
// the fraction of query terms the document matched.
type Candidate struct {
	Article corpus.Article
	Native  float64
}

// Index is the in-memory inverted index over the article corpus, keyed by
// URL. Documents index their title, excerpt, and derived keywords; full text
// is deliberately excluded so that body-only mentions surface through the
// scorer's passing-mention handling rather than as strong matches.
type Index struct {
	mu    sync.RWMutex
	docs  map[string]corpus.Article
	terms map[string]map[string]int
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		docs:  make(map[string]corpus.Article),
		terms: make(map[string]map[string]int),
	}
}

// Add indexes an article. Re-adding an existing URL is a no-op.
func (ix *Index) Add(a corpus.Article) bool {
	if !a.Valid() {
		return false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docs[a.URL]; exists {
		return false
	}
	ix.docs[a.URL] = a

	text := a.Title + " " + a.Excerpt
	tokens := Tokenize(text)
	tokens = append(tokens, a.Keywords...)
	for _, term := range tokens {
		postings, ok := ix.terms[term]
		if !ok {
			postings = make(map[string]int)
			ix.terms[term] = postings
		}
		postings[a.URL]++
	}
	return true
}

// Has reports whether a URL is already indexed.
func (ix *Index) Has(url string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[url]
	return ok
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Query returns up to limit candidates matching any of the query terms,
// strongest native match first. Ties break on URL for determinism.
func (ix *Index) Query(terms []string, limit int) []Candidate {
	if len(terms) == 0 {
		return nil
	}
	ix.mu.RLock()
	matched := make(map[string]int)
	for _, term := range terms {
		for url := range ix.terms[term] {
			matched[url]++
		}
	}
	candidates := make([]Candidate, 0, len(matched))
	for url, termCount := range matched {
		candidates = append(candidates, Candidate{
			Article: ix.docs[url],
			Native:  float64(termCount) / float64(len(terms)),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Native != candidates[j].Native {
			return candidates[i].Native > candidates[j].Native
		}
		return candidates[i].Article.URL < candidates[j].Article.URL
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
