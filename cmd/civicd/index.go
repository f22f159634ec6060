package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/search"
	"github.com/civicweave/civicdata/pkg/postgres"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <articles.json>",
	Short: "Bulk-import articles from a JSON file into the corpus",
	Long: `Reads a JSON array of articles and inserts them into the corpus.
Articles whose URL is already indexed are skipped, never overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var articles []corpus.Article
		if err := json.Unmarshal(data, &articles); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()

		store := corpus.NewPostgresStore(pg)
		svc := search.New(cfg.Search, store, nil, nil)
		inserted, err := svc.IndexArticles(cmd.Context(), articles)
		if err != nil {
			return fmt.Errorf("indexing articles: %w", err)
		}
		fmt.Printf("read %d articles, newly indexed %d\n", len(articles), inserted)
		return nil
	},
}
