package main

import (
	"context"
	"fmt"
	"time"

	"github.com/civicweave/civicdata/internal/cache"
	"github.com/civicweave/civicdata/pkg/redis"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a one-shot sweep of expired cache entries and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		store := cache.NewStore(redisClient, cfg.Cache, nil)
		deleted, err := store.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweeping cache: %w", err)
		}
		fmt.Printf("swept %d expired entries\n", deleted)
		return nil
	},
}
