package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/civicweave/civicdata/pkg/config"
	"github.com/google/go-cmp/cmp"
)

func newTestStore() (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	store := NewStore(backend, config.CacheConfig{KeyPrefix: "test:", MaxExcerpts: 3}, nil)
	return store, backend
}

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	want := doc{Name: "hr-1234", Count: 7}
	if ok := store.Set(ctx, "bill:hr-1234", want, TierDaily, nil); !ok {
		t.Fatal("Set returned false")
	}

	payload, ok := store.Get(ctx, "bill:hr-1234", TierDaily)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	var got doc
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreMissOnUnknownKey(t *testing.T) {
	store, _ := newTestStore()
	if _, ok := store.Get(context.Background(), "never-set", TierLive); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestStoreTiersAreIsolated(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.Set(ctx, "same-key", doc{Name: "daily"}, TierDaily, nil)
	if _, ok := store.Get(ctx, "same-key", TierWeekly); ok {
		t.Error("key stored in DAILY must not be visible in WEEKLY")
	}
}

// TestStoreExpiryByTier drives the store's clock through a DAILY entry's
// lifetime: still valid after one hour, expired after twenty-five.
func TestStoreExpiryByTier(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	store.Set(ctx, "results:senate-42", doc{Name: "live"}, TierDaily, nil)

	store.now = func() time.Time { return t0.Add(1 * time.Hour) }
	if _, ok := store.Get(ctx, "results:senate-42", TierDaily); !ok {
		t.Fatal("entry one hour old must still be a DAILY hit")
	}

	store.now = func() time.Time { return t0.Add(25 * time.Hour) }
	if _, ok := store.Get(ctx, "results:senate-42", TierDaily); ok {
		t.Fatal("entry twenty-five hours old must be a DAILY miss")
	}
	// The stale read also physically removes the record.
	if backend.Len() != 0 {
		t.Errorf("expected lazy delete of expired entry, backend holds %d", backend.Len())
	}
}

func TestStoreUnboundedTiersNeverExpire(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	store.Set(ctx, "election:2020", doc{Name: "final"}, TierHistorical, nil)

	store.now = func() time.Time { return t0.AddDate(6, 0, 0) }
	if _, ok := store.Get(ctx, "election:2020", TierHistorical); !ok {
		t.Error("HISTORICAL entries must survive years")
	}
}

func TestStoreCorruptEntryIsMiss(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	store.Set(ctx, "bad", doc{Name: "x"}, TierLive, nil)
	keys, err := backend.ScanKeys(ctx, "test:LIVE:*")
	if err != nil || len(keys) != 1 {
		t.Fatalf("scan: keys=%v err=%v", keys, err)
	}
	backend.Set(ctx, keys[0], []byte("{not json"), 0)

	if _, ok := store.Get(ctx, "bad", TierLive); ok {
		t.Error("corrupt entry must read as a miss")
	}
}

func TestStoreCompressesNewsArticles(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	article := map[string]any{
		"title":        "Senate passes infrastructure bill",
		"url":          "https://apnews.com/article/abc",
		"source":       "apnews.com",
		"excerpt":      "The Senate passed the bill on Tuesday.",
		"full_text":    "A very long body that should never be cached. " + longText(),
		"author_bio":   "Jane Reporter has covered Congress for a decade.",
		"related_urls": []string{"https://a", "https://b"},
		"key_excerpts": []string{"one", "two", "three", "four", "five"},
	}
	store.Set(ctx, "article:abc", article, TierWeekly, &Metadata{Type: "news_article"})

	payload, ok := store.Get(ctx, "article:abc", TierWeekly)
	if !ok {
		t.Fatal("expected hit")
	}
	var stored map[string]any
	if err := json.Unmarshal(payload, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := stored["full_text"]; present {
		t.Error("full_text must be stripped from cached news articles")
	}
	if _, present := stored["author_bio"]; present {
		t.Error("unknown fields must be stripped")
	}
	if stored["title"] != article["title"] {
		t.Errorf("title lost: %v", stored["title"])
	}
	excerpts, _ := stored["key_excerpts"].([]any)
	if len(excerpts) != 3 {
		t.Errorf("key_excerpts must be capped at MaxExcerpts=3, got %d", len(excerpts))
	}
	if backend.Len() != 1 {
		t.Fatalf("expected one physical record, got %d", backend.Len())
	}
}

func TestStoreUnknownTypeStoredVerbatim(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	original := map[string]any{"alpha": "a", "beta": "b"}
	store.Set(ctx, "misc", original, TierLive, &Metadata{Type: "unrecognized"})

	payload, ok := store.Get(ctx, "misc", TierLive)
	if !ok {
		t.Fatal("expected hit")
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("unknown type must round-trip unchanged (-want +got):\n%s", diff)
	}
}

func TestGetOrComputeRunsOnceThenCaches(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	calls := 0
	compute := func() (any, error) {
		calls++
		return doc{Name: "computed", Count: calls}, nil
	}

	payload, fromCache, err := store.GetOrCompute(ctx, "expensive", TierComputed, nil, compute)
	if err != nil {
		t.Fatalf("first GetOrCompute: %v", err)
	}
	if fromCache {
		t.Error("first call must compute, not hit")
	}
	var first doc
	json.Unmarshal(payload, &first)

	payload, fromCache, err = store.GetOrCompute(ctx, "expensive", TierComputed, nil, compute)
	if err != nil {
		t.Fatalf("second GetOrCompute: %v", err)
	}
	if !fromCache {
		t.Error("second call must come from cache")
	}
	var second doc
	json.Unmarshal(payload, &second)

	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached value drifted (-first +second):\n%s", diff)
	}
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	store, _ := newTestStore()
	wantErr := errors.New("upstream down")

	_, _, err := store.GetOrCompute(context.Background(), "failing", TierLive, nil, func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want wrapped %v", err, wantErr)
	}
	// A failed compute must not poison the cache.
	if _, ok := store.Get(context.Background(), "failing", TierLive); ok {
		t.Error("failed compute must not leave a cached entry")
	}
}

func TestInvalidateRemovesAllTiers(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.Set(ctx, "rep:jane-doe", doc{Name: "v1"}, TierCampaign, nil)
	store.Set(ctx, "rep:jane-doe", doc{Name: "v2"}, TierHistorical, nil)

	if err := store.Invalidate(ctx, "rep:jane-doe"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := store.Get(ctx, "rep:jane-doe", TierCampaign); ok {
		t.Error("CAMPAIGN entry survived invalidation")
	}
	if _, ok := store.Get(ctx, "rep:jane-doe", TierHistorical); ok {
		t.Error("HISTORICAL entry survived invalidation")
	}
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	store.Set(ctx, "old-live", doc{}, TierLive, nil)
	store.Set(ctx, "old-daily", doc{}, TierDaily, nil)
	store.Set(ctx, "forever", doc{}, TierHistorical, nil)

	store.now = func() time.Time { return t0.Add(6 * time.Hour) }
	store.Set(ctx, "fresh-daily", doc{}, TierDaily, nil)

	// 26h after t0: old-live (5m) and old-daily (24h) are expired,
	// fresh-daily is 20h old, HISTORICAL never expires.
	store.now = func() time.Time { return t0.Add(26 * time.Hour) }
	deleted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 2 {
		t.Errorf("swept %d entries, want 2", deleted)
	}
	if _, ok := store.Get(ctx, "fresh-daily", TierDaily); !ok {
		t.Error("fresh DAILY entry must survive the sweep")
	}
	if backend.Len() != 2 {
		t.Errorf("backend holds %d records after sweep, want 2", backend.Len())
	}
}

func TestPhysicalKeysAreHashedAndNamespaced(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	logical := "a key with spaces / and : punctuation"
	store.Set(ctx, logical, doc{}, TierLive, nil)

	keys, err := backend.ScanKeys(ctx, "test:LIVE:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	// prefix + tier + 16-byte hash in hex
	if want := len("test:LIVE:") + 32; len(keys[0]) != want {
		t.Errorf("physical key %q has length %d, want %d", keys[0], len(keys[0]), want)
	}
}

func longText() string {
	s := ""
	for i := 0; i < 50; i++ {
		s += "Lorem ipsum dolor sit amet, consectetur adipiscing elit. "
	}
	return s
}
