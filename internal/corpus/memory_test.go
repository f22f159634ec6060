package corpus

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/civicweave/civicdata/pkg/errors"
)

func TestMemoryStoreInsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	batch := []Article{
		{URL: "https://example.com/1", Title: "First"},
		{URL: "https://example.com/2", Title: "Second"},
	}

	if n, err := store.Insert(ctx, batch); err != nil || n != 2 {
		t.Fatalf("Insert = %d, %v; want 2, nil", n, err)
	}
	if n, err := store.Insert(ctx, batch); err != nil || n != 0 {
		t.Fatalf("re-Insert = %d, %v; want 0, nil", n, err)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestMemoryStoreInsertNeverOverwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Insert(ctx, []Article{{URL: "https://example.com/1", Title: "Original"}})
	store.Insert(ctx, []Article{{URL: "https://example.com/1", Title: "Replacement"}})

	got, err := store.GetByURL(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("GetByURL: %v", err)
	}
	if got.Title != "Original" {
		t.Errorf("title = %q, duplicate insert must not overwrite", got.Title)
	}
}

func TestMemoryStoreGetByURLNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetByURL(context.Background(), "https://example.com/missing")
	if !errors.Is(err, apperrors.ErrArticleNotFound) {
		t.Errorf("got %v, want ErrArticleNotFound", err)
	}
}

func TestMemoryStoreBackfillOnlyWhenEmpty(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Insert(ctx, []Article{{URL: "https://example.com/1", Title: "T"}})

	if err := store.BackfillFullText(ctx, "https://example.com/1", "body one"); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if err := store.BackfillFullText(ctx, "https://example.com/1", "body two"); err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	got, _ := store.GetByURL(ctx, "https://example.com/1")
	if got.FullText != "body one" {
		t.Errorf("full text = %q, backfill must not replace existing text", got.FullText)
	}

	// Backfill of an unknown URL is a silent no-op.
	if err := store.BackfillFullText(ctx, "https://example.com/ghost", "x"); err != nil {
		t.Errorf("backfill of unknown url: %v", err)
	}
}

func TestMemoryStoreRecentOrdersByDate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	store.Insert(ctx, []Article{
		{URL: "https://example.com/old", Title: "Old", PublishedDate: day(1)},
		{URL: "https://example.com/new", Title: "New", PublishedDate: day(20)},
		{URL: "https://example.com/mid", Title: "Mid", PublishedDate: day(10)},
	})

	articles, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].URL != "https://example.com/new" || articles[1].URL != "https://example.com/mid" {
		t.Errorf("order wrong: %s, %s", articles[0].URL, articles[1].URL)
	}
}

func TestArticleValid(t *testing.T) {
	cases := []struct {
		a    Article
		want bool
	}{
		{Article{URL: "https://x", Title: "t"}, true},
		{Article{URL: "https://x"}, false},
		{Article{Title: "t"}, false},
		{Article{URL: "  ", Title: "t"}, false},
	}
	for _, tc := range cases {
		if got := tc.a.Valid(); got != tc.want {
			t.Errorf("Valid(%+v) = %v, want %v", tc.a, got, tc.want)
		}
	}
}
