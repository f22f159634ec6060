package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/civicweave/civicdata/internal/cache"
	"github.com/civicweave/civicdata/internal/corpus"
	"github.com/civicweave/civicdata/internal/fetchqueue"
	"github.com/civicweave/civicdata/internal/orchestrator"
	"github.com/civicweave/civicdata/internal/scraper"
	"github.com/civicweave/civicdata/internal/search"
	"github.com/civicweave/civicdata/pkg/config"
	apperrors "github.com/civicweave/civicdata/pkg/errors"
	"github.com/civicweave/civicdata/pkg/health"
	"github.com/civicweave/civicdata/pkg/kafka"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/metrics"
	"github.com/civicweave/civicdata/pkg/postgres"
	"github.com/civicweave/civicdata/pkg/redis"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its HTTP API, sweep loop, and invalidation consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Config) error {
	log := logger.WithComponent("civicd")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pg.Close()

	cacheStore := cache.NewStore(redisClient, cfg.Cache, m)
	cacheStore.StartSweepLoop(ctx)

	store := corpus.NewPostgresStore(pg)

	queue := fetchqueue.New(cfg.Queue, m)
	queue.Start(ctx)

	fallback := search.NewLiveFallback(queue, cfg.Search, cfg.Scraper.UserAgent)
	searchSvc := search.New(cfg.Search, store, fallback, m)
	if loaded, err := searchSvc.WarmLoad(ctx, 0); err != nil {
		log.Warn("index warm load failed, starting with empty index", "error", err)
	} else {
		log.Info("index warmed from corpus", "documents", loaded)
	}

	scr := scraper.New(cfg.Scraper, queue, cacheStore, store, m)

	indexedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ArticleIndexed)
	defer indexedProducer.Close()
	searchSvc.SetEvents(indexedProducer)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer producer.Close()

	orch := orchestrator.New(cacheStore, searchSvc, nil, producer)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, orch.HandleInvalidation)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("invalidation consumer stopped", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", checker.LiveHandler())
	mux.HandleFunc("/health/ready", checker.ReadyHandler())
	mux.HandleFunc("/api/v1/search", handleSearch(searchSvc))
	mux.HandleFunc("/api/v1/analyze", handleAnalyze(orch))
	mux.HandleFunc("/api/v1/scrape", handleScrape(scr))
	mux.HandleFunc("/api/v1/queue/stats", handleQueueStats(queue))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      withRequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("http server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", "error", err)
		}
	}
	if dropped := queue.Clear(); dropped > 0 {
		log.Info("dropped queued fetches on shutdown", "count", dropped)
	}
	log.Info("shutdown complete")
	return nil
}

// withRequestID tags each request with a short random ID, exposed both in the
// response header and in the context for log correlation.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newRequestID()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func newRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf[:])
}

func handleSearch(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, r, http.StatusMethodNotAllowed, "GET only")
			return
		}
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, r, http.StatusBadRequest, "query parameter q is required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results := svc.Search(r.Context(), []string{q}, search.Options{
			Source: r.URL.Query().Get("source"),
			Limit:  limit,
		})
		writeJSON(w, r, http.StatusOK, map[string]any{
			"query":   q,
			"count":   len(results),
			"results": results,
		})
	}
}

func handleAnalyze(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, r, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req orchestrator.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		analysis, err := orch.Analyze(r.Context(), req)
		if err != nil {
			logger.FromContext(r.Context()).Warn("analysis failed",
				"entity", req.EntityID,
				"error", err,
			)
			writeError(w, r, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, analysis)
	}
}

func handleScrape(scr *scraper.Scraper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, r, http.StatusMethodNotAllowed, "POST only")
			return
		}
		var req struct {
			URLs        []string `json:"urls"`
			Concurrency int      `json:"concurrency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.URLs) == 0 {
			writeError(w, r, http.StatusBadRequest, "urls is required")
			return
		}
		results := scr.ScrapeBatch(r.Context(), req.URLs, req.Concurrency)
		writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
	}
}

func handleQueueStats(queue *fetchqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, queue.Stats())
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}
