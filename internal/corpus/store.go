package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/civicweave/civicdata/pkg/errors"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/postgres"
	"github.com/lib/pq"
)

// Store is the article persistence contract. PostgresStore serves production;
// MemoryStore serves tests and redis/postgres-less runs.
type Store interface {
	// Insert persists articles, skipping any whose URL already exists, and
	// returns the number newly stored.
	Insert(ctx context.Context, articles []Article) (int, error)
	// GetByURL returns the article for a URL or ErrArticleNotFound.
	GetByURL(ctx context.Context, url string) (*Article, error)
	// BackfillFullText sets an article's full text only when it is still
	// empty; existing text is never overwritten.
	BackfillFullText(ctx context.Context, url string, fullText string) error
	// Recent returns up to limit articles, newest published first.
	Recent(ctx context.Context, limit int) ([]Article, error)
	// Count returns the corpus size.
	Count(ctx context.Context) (int, error)
}

// PostgresStore persists articles in PostgreSQL.
//
// It requires an `articles` table:
//
//	CREATE TABLE articles (
//	    url            TEXT PRIMARY KEY,
//	    title          TEXT NOT NULL,
//	    source         TEXT NOT NULL DEFAULT '',
//	    excerpt        TEXT NOT NULL DEFAULT '',
//	    full_text      TEXT NOT NULL DEFAULT '',
//	    published_date TIMESTAMPTZ,
//	    topics         TEXT[] NOT NULL DEFAULT '{}',
//	    keywords       TEXT[] NOT NULL DEFAULT '{}',
//	    indexed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore over the given client.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.WithComponent("corpus-store"),
	}
}

func (s *PostgresStore) Insert(ctx context.Context, articles []Article) (int, error) {
	inserted := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO articles (url, title, source, excerpt, full_text, published_date, topics, keywords)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (url) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range articles {
			if !a.Valid() {
				continue
			}
			res, err := stmt.ExecContext(ctx,
				a.URL, a.Title, a.Source, a.Excerpt, a.FullText,
				nullableTime(a.PublishedDate),
				pq.Array(a.Topics), pq.Array(a.Keywords),
			)
			if err != nil {
				return fmt.Errorf("inserting %s: %w", a.URL, err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.logger.Info("articles indexed", "new", inserted, "offered", len(articles))
	}
	return inserted, nil
}

func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*Article, error) {
	var a Article
	var published sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT url, title, source, excerpt, full_text, published_date, topics, keywords
		 FROM articles WHERE url = $1`, url,
	).Scan(&a.URL, &a.Title, &a.Source, &a.Excerpt, &a.FullText,
		&published, pq.Array(&a.Topics), pq.Array(&a.Keywords))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrArticleNotFound, 404, "url %s", url)
	}
	if err != nil {
		return nil, fmt.Errorf("querying article %s: %w", url, err)
	}
	if published.Valid {
		a.PublishedDate = published.Time
	}
	return &a, nil
}

func (s *PostgresStore) BackfillFullText(ctx context.Context, url string, fullText string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE articles SET full_text = $2 WHERE url = $1 AND full_text = ''`,
		url, fullText,
	)
	if err != nil {
		return fmt.Errorf("backfilling full text for %s: %w", url, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("full text backfilled", "url", url, "bytes", len(fullText))
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Article, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT url, title, source, excerpt, full_text, published_date, topics, keywords
		 FROM articles ORDER BY published_date DESC NULLS LAST LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		var published sql.NullTime
		if err := rows.Scan(&a.URL, &a.Title, &a.Source, &a.Excerpt, &a.FullText,
			&published, pq.Array(&a.Topics), pq.Array(&a.Keywords)); err != nil {
			return nil, fmt.Errorf("scanning article row: %w", err)
		}
		if published.Valid {
			a.PublishedDate = published.Time
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return count, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
