package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/fetchqueue"
	"github.com/civicweave/civicdata/pkg/config"
	"github.com/civicweave/civicdata/pkg/logger"
	"golang.org/x/net/html"
)

// fallbackPriority ranks live fallback fetches above routine scraping work in
// the queue: a user is waiting on the result.
const fallbackPriority = 8

// LiveFallback performs site-restricted web searches against each trusted
// outlet through the rate-limited fetch queue, extracting the top result per
// outlet. Outlets are visited sequentially with a fixed inter-outlet delay on
// top of the queue's own rate limits.
type LiveFallback struct {
	queue  *fetchqueue.Queue
	client *http.Client
	cfg    config.SearchConfig
	ua     string
	logger *slog.Logger
}

// NewLiveFallback creates a LiveFallback over the given queue.
func NewLiveFallback(queue *fetchqueue.Queue, cfg config.SearchConfig, userAgent string) *LiveFallback {
	return &LiveFallback{
		queue:  queue,
		client: &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		ua:     userAgent,
		logger: logger.WithComponent("fallback-search"),
	}
}

// TopResultPerOutlet queries each outlet in turn and returns the union of top
// results. Per-outlet failures are absorbed and logged; the harvest simply
// shrinks. Articles come back with empty FullText, to be backfilled lazily by
// the scraper.
func (f *LiveFallback) TopResultPerOutlet(ctx context.Context, query string, outlets []string) []corpus.Article {
	var articles []corpus.Article
	for i, outlet := range outlets {
		if i > 0 && f.cfg.OutletDelay > 0 {
			select {
			case <-time.After(f.cfg.OutletDelay):
			case <-ctx.Done():
				return articles
			}
		}
		article, err := f.searchOutlet(ctx, query, outlet)
		if err != nil {
			f.logger.Warn("outlet fallback search failed",
				"outlet", outlet,
				"error", err,
			)
			continue
		}
		if article != nil {
			articles = append(articles, *article)
		}
	}
	f.logger.Info("fallback search complete",
		"query", query,
		"outlets", len(outlets),
		"found", len(articles),
	)
	return articles
}

// searchOutlet runs one site-restricted search and parses the first organic
// result pointing at the outlet.
func (f *LiveFallback) searchOutlet(ctx context.Context, query string, outlet string) (*corpus.Article, error) {
	searchURL := fmt.Sprintf(
		"https://html.duckduckgo.com/html/?q=%s",
		url.QueryEscape(fmt.Sprintf("site:%s %s", outlet, query)),
	)
	value, err := f.queue.Do(ctx, searchURL, f.fetchPage, fetchqueue.Options{Priority: fallbackPriority})
	if err != nil {
		return nil, err
	}
	body, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected fetch result type %T", value)
	}
	article := parseTopResult(body, outlet)
	if article == nil {
		return nil, nil
	}
	article.Source = outlet
	return article, nil
}

func (f *LiveFallback) fetchPage(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	resp, err := f.client.Do(req)
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

// parseTopResult walks the result page and extracts the first link whose
// resolved target lives on the outlet's domain, together with its snippet.
func parseTopResult(body string, outlet string) *corpus.Article {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var article *corpus.Article
	var anchor *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if article != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			target := resolveRedirect(href)
			if target != "" && strings.Contains(hostOf(target), strings.TrimPrefix(outlet, "www.")) {
				article = &corpus.Article{
					URL:   target,
					Title: strings.TrimSpace(nodeText(n)),
				}
				anchor = n
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if article == nil {
		return nil
	}

	// Best-effort snippet, scoped to the matched link's result block so a
	// different hit's snippet is never attached.
	if block := enclosingResult(anchor); block != nil {
		var findSnippet func(n *html.Node)
		findSnippet = func(n *html.Node) {
			if article.Excerpt != "" {
				return
			}
			if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
				article.Excerpt = strings.TrimSpace(nodeText(n))
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				findSnippet(c)
			}
		}
		findSnippet(block)
	}
	return article
}

// enclosingResult climbs from the matched link to the per-result container
// the snippet lives in.
func enclosingResult(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode &&
			(hasClass(p, "result") || hasClass(p, "result__body") || hasClass(p, "links_main")) {
			return p
		}
	}
	return nil
}

// resolveRedirect unwraps the search engine's redirect URL (the uddg query
// parameter) to the real article URL. Direct links pass through unchanged.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
