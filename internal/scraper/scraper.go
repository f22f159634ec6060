// Package scraper extracts the main textual content of known article URLs
// using outlet-specific content-location rules with generic fallbacks. It is
// best-effort and stays out of the search critical path: results are typed
// (never thrown), and both successes and failures are cached so doomed URLs
// are not re-fetched.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civicweave/civicdata/internal/cache"
	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/fetchqueue"
	"github.com/civicweave/civicdata/pkg/config"
	apperrors "github.com/civicweave/civicdata/pkg/errors"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/metrics"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// scrapePriority keeps backfill scraping below interactive fallback searches
// in the fetch queue.
const scrapePriority = 3

// Result is the typed outcome of a scrape. Error marks failures; callers in
// batch loops continue past them rather than aborting siblings.
type Result struct {
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	Length  int    `json:"length"`
	Error   bool   `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// Scraper fetches and extracts article content.
type Scraper struct {
	cfg     config.ScraperConfig
	queue   *fetchqueue.Queue
	cache   *cache.Store
	store   corpus.Store
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Scraper. cache and store may be nil, disabling result caching
// and full-text backfill respectively.
func New(cfg config.ScraperConfig, queue *fetchqueue.Queue, cacheStore *cache.Store, store corpus.Store, m *metrics.Metrics) *Scraper {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 200
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 50000
	}
	return &Scraper{
		cfg:     cfg,
		queue:   queue,
		cache:   cacheStore,
		store:   store,
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: m,
		logger:  logger.WithComponent("scraper"),
	}
}

// Scrape fetches one URL through the rate-limited queue and extracts its main
// content. Cached outcomes, successes and failures alike, short-circuit the
// fetch.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) Result {
	if cached, ok := s.cachedResult(ctx, rawURL); ok {
		s.count("cached")
		return cached
	}

	value, err := s.queue.Do(ctx, rawURL, s.fetchPage, fetchqueue.Options{Priority: scrapePriority})
	if err != nil {
		return s.failure(ctx, rawURL, fmt.Sprintf("fetch failed: %v", err))
	}
	body, ok := value.(string)
	if !ok {
		return s.failure(ctx, rawURL, fmt.Sprintf("unexpected fetch result type %T", value))
	}

	content, matched := s.extract(rawURL, body)
	if len(content) < s.cfg.MinContentLength {
		s.count("insufficient")
		err := fmt.Errorf("%w: %d chars via %q (minimum %d)",
			apperrors.ErrInsufficientContent, len(content), matched, s.cfg.MinContentLength)
		return s.failure(ctx, rawURL, err.Error())
	}
	if len(content) > s.cfg.MaxContentLength {
		content = content[:s.cfg.MaxContentLength]
	}

	result := Result{URL: rawURL, Content: content, Length: len(content)}
	s.count("ok")
	if s.cache != nil {
		s.cache.Set(ctx, scrapeKey(rawURL), result, cache.TierWeekly, nil)
	}
	if s.store != nil {
		if err := s.store.BackfillFullText(ctx, rawURL, content); err != nil {
			s.logger.Warn("full-text backfill failed", "url", rawURL, "error", err)
		}
	}
	s.logger.Debug("scrape complete", "url", rawURL, "chars", len(content), "selector", matched)
	return result
}

// ScrapeBatch scrapes URLs with bounded concurrency, returning one Result per
// URL in input order. Individual failures never abort the batch.
func (s *Scraper) ScrapeBatch(ctx context.Context, urls []string, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 2
	}
	results := make([]Result, len(urls))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = s.Scrape(ctx, u)
			return nil
		})
	}
	g.Wait()
	return results
}

// extract runs the outlet's selector chain over the document, falling through
// to increasingly generic rules until one yields enough text. It returns the
// longest extraction seen and the selector description that produced it.
func (s *Scraper) extract(rawURL string, body string) (string, string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", "parse"
	}
	best, bestRule := "", "none"
	for _, rule := range rulesFor(domainOf(rawURL)) {
		node := findNode(doc, rule)
		if node == nil {
			continue
		}
		content := extractText(node)
		if len(content) >= s.cfg.MinContentLength {
			return content, ruleName(rule)
		}
		if len(content) > len(best) {
			best, bestRule = content, ruleName(rule)
		}
	}
	return best, bestRule
}

func (s *Scraper) fetchPage(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return string(body), nil
}

// failure records a failed scrape in the cache (shorter tier than successes,
// so transient outages retry within a day) and returns the typed result.
func (s *Scraper) failure(ctx context.Context, rawURL string, reason string) Result {
	result := Result{URL: rawURL, Error: true, Reason: reason}
	s.count("error")
	if s.cache != nil {
		s.cache.Set(ctx, scrapeKey(rawURL), result, cache.TierDaily, nil)
	}
	s.logger.Warn("scrape failed", "url", rawURL, "reason", reason)
	return result
}

// cachedResult checks the success tier, then the failure tier, for a prior
// outcome of this URL.
func (s *Scraper) cachedResult(ctx context.Context, rawURL string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	key := scrapeKey(rawURL)
	for _, tier := range []cache.Tier{cache.TierWeekly, cache.TierDaily} {
		payload, ok := s.cache.Get(ctx, key, tier)
		if !ok {
			continue
		}
		var result Result
		if err := json.Unmarshal(payload, &result); err != nil {
			continue
		}
		return result, true
	}
	return Result{}, false
}

func (s *Scraper) count(result string) {
	if s.metrics != nil {
		s.metrics.ScrapesTotal.WithLabelValues(result).Inc()
	}
}

func scrapeKey(rawURL string) string {
	return "scrape:" + rawURL
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func ruleName(sel selector) string {
	if sel.Attr == "" {
		return sel.Tag
	}
	return fmt.Sprintf("%s[%s*=%s]", sel.Tag, sel.Attr, sel.Contains)
}
