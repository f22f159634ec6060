package main

import (
	"fmt"
	"strings"

	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/search"
	"github.com/civicweave/civicdata/pkg/postgres"
	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchSource string
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search the article corpus from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()

		store := corpus.NewPostgresStore(pg)
		svc := search.New(cfg.Search, store, nil, nil)
		if _, err := svc.WarmLoad(cmd.Context(), 0); err != nil {
			return fmt.Errorf("loading index: %w", err)
		}

		results := svc.Search(cmd.Context(), args, search.Options{
			Limit:  searchLimit,
			Source: searchSource,
		})
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%2d. [%6.1f] %s\n    %s (%s)\n", i+1, r.RelevanceScore, r.Title, r.URL, r.Source)
			if r.Snippet != "" {
				fmt.Printf("    %s\n", truncate(r.Snippet, 160))
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (0 = configured default)")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "restrict results to one outlet")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
