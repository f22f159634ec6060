package main

import (
	"github.com/civicweave/civicdata/pkg/config"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "civicd",
	Short: "civicdata caching, fetch-queue, and article-search engine",
	Long: `civicd runs the civicdata engine: a tiered TTL cache over Redis, a
rate-limited fetch queue for polite external requests, and a relevance-ranked
search pipeline over a Postgres article corpus with live trusted-outlet
fallback.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, sweepCmd, searchCmd, indexCmd)
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
