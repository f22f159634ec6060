// Package search implements the relevance-ranked search and indexing
// pipeline: keyword search over the locally indexed article corpus, a scoring
// function that privileges where a term appears (title over excerpt over
// body) and whether an inferred entity name surfaces at all, a live fallback
// search for thin local coverage, and automatic re-indexing of fallback
// results so the corpus learns from use.
package search

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/pkg/config"
	"github.com/civicweave/civicdata/pkg/kafka"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/metrics"
)

// Options filters and shapes a search.
type Options struct {
	// Source restricts results to a single outlet (name or domain).
	Source string
	// Limit bounds the result count; zero means the configured default.
	Limit int
	// MinDate excludes articles published earlier.
	MinDate time.Time
	// PrioritizeSources front-loads results from these outlets, in list
	// order, ahead of pure score ordering.
	PrioritizeSources []string
}

// Result is a scored search hit.
type Result struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Snippet        string    `json:"snippet"`
	Source         string    `json:"source"`
	Date           time.Time `json:"date"`
	RelevanceScore float64   `json:"relevance_score"`
	Topics         []string  `json:"topics,omitempty"`
}

// EntityResults is the outcome of an entity search. Degraded distinguishes
// "the fallback could not run cleanly" from a genuinely empty result set.
type EntityResults struct {
	Results      []Result `json:"results"`
	UsedFallback bool     `json:"used_fallback"`
	Degraded     bool     `json:"degraded"`
	NewlyIndexed int      `json:"newly_indexed"`
}

// Fallback performs a live, trusted-outlet-restricted search when local
// coverage is thin. Implementations go through the fetch queue and must
// respect the configured inter-outlet delay.
type Fallback interface {
	TopResultPerOutlet(ctx context.Context, query string, outlets []string) []corpus.Article
}

// Publisher emits article lifecycle events. Production wires the kafka
// article-indexed topic; publishing is best-effort and never fails a search.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// IndexedEvent announces newly indexed articles on the article-indexed topic.
type IndexedEvent struct {
	Count int      `json:"count"`
	URLs  []string `json:"urls"`
}

// Service is the search pipeline facade.
type Service struct {
	cfg      config.SearchConfig
	store    corpus.Store
	index    *Index
	fallback Fallback
	events   Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a search Service. fallback may be nil, disabling live search.
func New(cfg config.SearchConfig, store corpus.Store, fallback Fallback, m *metrics.Metrics) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.EntityLimit <= 0 {
		cfg.EntityLimit = 30
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = 10
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		index:    NewIndex(),
		fallback: fallback,
		metrics:  m,
		logger:   logger.WithComponent("article-search"),
	}
}

// SetEvents wires an event publisher for newly indexed articles. Nil (the
// default) disables publishing.
func (s *Service) SetEvents(p Publisher) {
	s.events = p
}

// WarmLoad populates the in-memory index from the persistent corpus. Called
// once at startup; limit <= 0 loads everything the store will return.
func (s *Service) WarmLoad(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100000
	}
	articles, err := s.store.Recent(ctx, limit)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, a := range articles {
		if s.index.Add(a) {
			loaded++
		}
	}
	s.logger.Info("index warm load complete", "documents", loaded)
	return loaded, nil
}

// Search tokenizes the keywords, pulls twice the limit of candidates from the
// local index, scores them, applies source prioritisation, and truncates.
// It never returns an error: search degrades to an empty result set.
func (s *Service) Search(ctx context.Context, keywords []string, opts Options) []Result {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	terms := Tokenize(strings.Join(keywords, " "))
	if len(terms) == 0 {
		return nil
	}

	// Over-fetch so post-filtering cannot starve the final page.
	candidates := s.index.Query(terms, 2*limit)
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		a := c.Article
		if opts.Source != "" && !sourceMatches(a, opts.Source) {
			continue
		}
		if !opts.MinDate.IsZero() && a.PublishedDate.Before(opts.MinDate) {
			continue
		}
		results = append(results, Result{
			Title:          a.Title,
			URL:            a.URL,
			Snippet:        a.Excerpt,
			Source:         a.Source,
			Date:           a.PublishedDate,
			RelevanceScore: scoreCandidate(a.Title, a.Excerpt, terms, c.Native, true),
			Topics:         a.Topics,
		})
	}

	sortResults(results, opts.PrioritizeSources)
	if len(results) > limit {
		results = results[:limit]
	}

	if s.metrics != nil {
		s.metrics.SearchResultsCount.Observe(float64(len(results)))
		outcome := "local"
		if len(results) == 0 {
			outcome = "zero_result"
		}
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
	s.logger.Debug("search executed", "terms", terms, "results", len(results))
	return results
}

// SearchEntity searches for coverage of a named entity, biased toward the
// trusted-outlet allow-list. When local coverage falls below the fallback
// threshold and useFallback is set, it performs a live search across the
// trusted outlets, auto-indexes any new articles, and re-runs the local
// search over the grown corpus.
func (s *Service) SearchEntity(ctx context.Context, name string, topic string, useFallback bool) EntityResults {
	query := name
	if topic != "" {
		query += " " + topic
	}
	opts := Options{
		Limit:             s.cfg.EntityLimit,
		PrioritizeSources: s.cfg.TrustedOutlets,
	}

	local := s.Search(ctx, []string{query}, opts)
	out := EntityResults{Results: local}
	if !useFallback || s.fallback == nil || len(local) >= s.cfg.FallbackThreshold {
		return out
	}

	if s.metrics != nil {
		s.metrics.FallbackSearches.Inc()
	}
	s.logger.Info("local coverage thin, falling back to live search",
		"entity", name,
		"local_results", len(local),
		"threshold", s.cfg.FallbackThreshold,
	)
	out.UsedFallback = true

	found := s.fallback.TopResultPerOutlet(ctx, query, s.cfg.TrustedOutlets)
	if len(found) == 0 {
		// The fallback absorbed its own errors; an empty harvest with thin
		// local coverage means search is running degraded, not that nothing
		// exists.
		out.Degraded = true
		if s.metrics != nil {
			s.metrics.SearchQueriesTotal.WithLabelValues("degraded").Inc()
		}
		return out
	}

	newly, err := s.IndexArticles(ctx, found)
	if err != nil {
		s.logger.Error("auto-indexing fallback results failed", "error", err)
		out.Degraded = true
	}
	out.NewlyIndexed = newly

	out.Results = s.Search(ctx, []string{query}, opts)
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("fallback").Inc()
	}
	return out
}

// IndexArticles persists articles into the corpus and the in-memory index,
// returning the number newly stored. Duplicate URLs are skipped, never
// overwritten. Keywords are derived from title and excerpt when absent.
func (s *Service) IndexArticles(ctx context.Context, articles []corpus.Article) (int, error) {
	prepared := make([]corpus.Article, 0, len(articles))
	for _, a := range articles {
		if !a.Valid() {
			continue
		}
		if len(a.Keywords) == 0 {
			a.Keywords = Tokenize(a.Title + " " + a.Excerpt)
		}
		prepared = append(prepared, a)
	}
	inserted, err := s.store.Insert(ctx, prepared)
	if err != nil {
		return 0, err
	}
	for _, a := range prepared {
		s.index.Add(a)
	}
	if s.metrics != nil && inserted > 0 {
		s.metrics.ArticlesIndexed.Add(float64(inserted))
	}
	if s.events != nil && inserted > 0 {
		urls := make([]string, 0, len(prepared))
		for _, a := range prepared {
			urls = append(urls, a.URL)
		}
		event := kafka.Event{Key: "articles", Value: IndexedEvent{Count: inserted, URLs: urls}}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("article-indexed event publish failed", "error", err)
		}
	}
	return inserted, nil
}

// IndexSize returns the number of documents in the in-memory index.
func (s *Service) IndexSize() int {
	return s.index.Len()
}

// sortResults orders by descending score, except that results from
// prioritized sources sort first, in allow-list order, before score applies.
func sortResults(results []Result, prioritize []string) {
	rank := func(r Result) int {
		for i, outlet := range prioritize {
			if resultMatchesOutlet(r, outlet) {
				return i
			}
		}
		return len(prioritize)
	}
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := rank(results[i]), rank(results[j])
		if ri != rj {
			return ri < rj
		}
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
}

func sourceMatches(a corpus.Article, source string) bool {
	source = strings.ToLower(source)
	if strings.Contains(strings.ToLower(a.Source), source) {
		return true
	}
	return strings.Contains(hostOf(a.URL), source)
}

func resultMatchesOutlet(r Result, outlet string) bool {
	outlet = strings.ToLower(outlet)
	if outlet == "" {
		return false
	}
	if strings.Contains(strings.ToLower(r.Source), outlet) {
		return true
	}
	return strings.Contains(hostOf(r.URL), outlet)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
