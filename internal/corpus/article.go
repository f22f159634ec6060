// Package corpus persists the article collection backing local search. The
// corpus is append-only and keyed by URL: re-indexing an existing URL is a
// no-op, and articles are never deleted automatically. Full text may be
// backfilled lazily by the scraper.
package corpus

import (
	"strings"
	"time"
)

// Article is one indexed document. URL is globally unique within the corpus.
type Article struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Source        string    `json:"source"`
	Excerpt       string    `json:"excerpt"`
	FullText      string    `json:"full_text,omitempty"`
	PublishedDate time.Time `json:"published_date"`
	Topics        []string  `json:"topics,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
}

// Valid reports whether the article carries the minimum fields the index
// needs.
func (a Article) Valid() bool {
	return strings.TrimSpace(a.URL) != "" && strings.TrimSpace(a.Title) != ""
}
