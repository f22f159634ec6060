package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/civicweave/civicdata/internal/cache"
	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/search"
	"github.com/civicweave/civicdata/pkg/config"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *search.Service) {
	t.Helper()
	store := corpus.NewMemoryStore()
	svc := search.New(config.SearchConfig{}, store, nil, nil)
	cacheStore := cache.NewStore(cache.NewMemoryBackend(), config.CacheConfig{}, nil)
	return New(cacheStore, svc, nil, nil), svc
}

func seedArticle(t *testing.T, svc *search.Service, url, title string) {
	t.Helper()
	n, err := svc.IndexArticles(context.Background(), []corpus.Article{
		{URL: url, Title: title, Source: "reuters.com"},
	})
	if err != nil || n != 1 {
		t.Fatalf("seeding article: n=%d err=%v", n, err)
	}
}

func janeRequest(status string) Request {
	return Request{
		EntityID: "rep-jane-doe",
		Kind:     KindRepresentative,
		Query:    "Jane Doe",
		Topic:    "tax overhaul",
		Status:   status,
	}
}

func TestAnalyzeCachesResult(t *testing.T) {
	orch, svc := newTestOrchestrator(t)
	ctx := context.Background()
	seedArticle(t, svc, "https://reuters.com/1", "Jane Doe tax overhaul plan")

	first, err := orch.Analyze(ctx, janeRequest("introduced"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(first.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(first.Articles))
	}
	if first.Settled {
		t.Error("introduced bill must not be settled")
	}

	// Growing the corpus must not show through the cache.
	seedArticle(t, svc, "https://reuters.com/2", "Jane Doe defends tax overhaul")
	second, err := orch.Analyze(ctx, janeRequest("introduced"))
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if len(second.Articles) != 1 {
		t.Errorf("cached analysis returned %d articles, want the original 1", len(second.Articles))
	}
}

func TestAnalyzeValidatesRequest(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	if _, err := orch.Analyze(context.Background(), Request{Kind: KindBill}); err == nil {
		t.Error("missing entity id must be rejected")
	}
	if _, err := orch.Analyze(context.Background(), Request{EntityID: "x"}); err == nil {
		t.Error("missing kind must be rejected")
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	orch, svc := newTestOrchestrator(t)
	ctx := context.Background()
	seedArticle(t, svc, "https://reuters.com/1", "Jane Doe tax overhaul plan")

	if _, err := orch.Analyze(ctx, janeRequest("introduced")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	seedArticle(t, svc, "https://reuters.com/2", "Jane Doe defends tax overhaul")

	if err := orch.Invalidate(ctx, "rep-jane-doe", "manual"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	fresh, err := orch.Analyze(ctx, janeRequest("introduced"))
	if err != nil {
		t.Fatalf("Analyze after invalidate: %v", err)
	}
	if len(fresh.Articles) != 2 {
		t.Errorf("got %d articles after invalidation, want a fresh computation with 2", len(fresh.Articles))
	}
}

// TestStatusChangeInvalidates covers the amendment path: a moved status purges
// the stale analysis instead of serving it.
func TestStatusChangeInvalidates(t *testing.T) {
	orch, svc := newTestOrchestrator(t)
	ctx := context.Background()
	seedArticle(t, svc, "https://reuters.com/1", "Jane Doe tax overhaul plan")

	if _, err := orch.Analyze(ctx, janeRequest("introduced")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	seedArticle(t, svc, "https://reuters.com/2", "Jane Doe tax overhaul passes")

	after, err := orch.Analyze(ctx, janeRequest("passed"))
	if err != nil {
		t.Fatalf("Analyze after status change: %v", err)
	}
	if len(after.Articles) != 2 {
		t.Errorf("status change must force recompute: got %d articles, want 2", len(after.Articles))
	}
	if !after.Settled {
		t.Error("passed bill must be settled")
	}

	// Same status again: no further invalidation, the settled entry caches.
	seedArticle(t, svc, "https://reuters.com/3", "Jane Doe celebrates tax overhaul")
	again, err := orch.Analyze(ctx, janeRequest("passed"))
	if err != nil {
		t.Fatalf("repeat Analyze: %v", err)
	}
	if len(again.Articles) != 2 {
		t.Errorf("unchanged status must serve the cached analysis, got %d articles", len(again.Articles))
	}
}

func TestHandleInvalidationPurgesEntity(t *testing.T) {
	orch, svc := newTestOrchestrator(t)
	ctx := context.Background()
	seedArticle(t, svc, "https://reuters.com/1", "Jane Doe tax overhaul plan")

	if _, err := orch.Analyze(ctx, janeRequest("introduced")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	seedArticle(t, svc, "https://reuters.com/2", "Jane Doe defends tax overhaul")

	value, _ := json.Marshal(InvalidationEvent{EntityID: "rep-jane-doe", Reason: "amended"})
	if err := orch.HandleInvalidation(ctx, []byte("rep-jane-doe"), value); err != nil {
		t.Fatalf("HandleInvalidation: %v", err)
	}

	fresh, err := orch.Analyze(ctx, janeRequest("introduced"))
	if err != nil {
		t.Fatalf("Analyze after event: %v", err)
	}
	if len(fresh.Articles) != 2 {
		t.Errorf("remote invalidation must purge the entity, got %d articles", len(fresh.Articles))
	}
}

func TestHandleInvalidationRejectsGarbage(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	if err := orch.HandleInvalidation(context.Background(), nil, []byte("not json")); err == nil {
		t.Error("malformed event must error so the consumer logs it")
	}
}

func TestDefaultStatusPolicy(t *testing.T) {
	policy := DefaultStatusPolicy{}
	settled := []string{"passed", "Failed", "ENACTED", "became_law", "vetoed"}
	for _, s := range settled {
		if !policy.Settled(KindBill, s) {
			t.Errorf("status %q must be settled", s)
		}
	}
	active := []string{"introduced", "in_committee", "floor_vote", ""}
	for _, s := range active {
		if policy.Settled(KindBill, s) {
			t.Errorf("status %q must not be settled", s)
		}
	}
}

func TestDistinctQueriesCacheIndependently(t *testing.T) {
	orch, svc := newTestOrchestrator(t)
	ctx := context.Background()
	seedArticle(t, svc, "https://reuters.com/1", "Jane Doe tax overhaul plan")

	if _, err := orch.Analyze(ctx, janeRequest("introduced")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	other := janeRequest("introduced")
	other.Topic = "healthcare expansion"
	seedArticle(t, svc, "https://reuters.com/hc", "Jane Doe healthcare expansion push")
	res, err := orch.Analyze(ctx, other)
	if err != nil {
		t.Fatalf("Analyze other topic: %v", err)
	}
	// A different topic derives a different key, so this is a fresh compute
	// that sees both seeded articles.
	if len(res.Articles) != 2 {
		t.Errorf("got %d articles for the second topic, want 2", len(res.Articles))
	}
}
