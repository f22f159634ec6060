package corpus

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/civicweave/civicdata/pkg/errors"
)

// MemoryStore is an in-process Store used by tests and by runs without a
// database. It honours the same URL-uniqueness and backfill-only semantics as
// PostgresStore.
type MemoryStore struct {
	mu      sync.RWMutex
	byURL   map[string]Article
	ordered []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byURL: make(map[string]Article)}
}

func (s *MemoryStore) Insert(ctx context.Context, articles []Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, a := range articles {
		if !a.Valid() {
			continue
		}
		if _, exists := s.byURL[a.URL]; exists {
			continue
		}
		s.byURL[a.URL] = a
		s.ordered = append(s.ordered, a.URL)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) GetByURL(ctx context.Context, url string) (*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byURL[url]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrArticleNotFound, 404, "url %s", url)
	}
	return &a, nil
}

func (s *MemoryStore) BackfillFullText(ctx context.Context, url string, fullText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byURL[url]
	if !ok || a.FullText != "" {
		return nil
	}
	a.FullText = fullText
	s.byURL[url] = a
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	articles := make([]Article, 0, len(s.byURL))
	for _, url := range s.ordered {
		articles = append(articles, s.byURL[url])
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedDate.After(articles[j].PublishedDate)
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL), nil
}
