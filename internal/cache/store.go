// Package cache implements the tiered TTL cache store. Entries are grouped
// into named tiers with fixed max ages, keyed by a stable hash of the logical
// key, and validated against their stored-at timestamp on every read. Known
// payload shapes are reduced to their essential fields before storage.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicweave/civicdata/pkg/config"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Metadata carries optional information about a value being stored. Type is
// the payload-shape discriminator driving compression.
type Metadata struct {
	Type string
}

// envelope is the physical record: the payload plus the bookkeeping needed to
// validate entry age independently of the backend's own TTL support.
type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Type     string          `json:"type,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Store is the tiered cache. It is constructed once per process and passed by
// reference to consumers; tests get isolation by constructing fresh instances
// over a MemoryBackend.
type Store struct {
	backend Backend
	cfg     config.CacheConfig
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, cfg config.CacheConfig, m *metrics.Metrics) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "civic:"
	}
	if cfg.MaxExcerpts <= 0 {
		cfg.MaxExcerpts = 5
	}
	return &Store{
		backend: backend,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("tiered-cache"),
		now:     time.Now,
	}
}

// Get returns the payload stored under key in the given tier, or ok=false on
// a miss. An entry older than its tier's max age is a miss; the stale record
// is deleted opportunistically. Read failures are also treated as misses:
// caching is an optimization, never a correctness requirement.
func (s *Store) Get(ctx context.Context, key string, tier Tier) (json.RawMessage, bool) {
	physical := s.physicalKey(key, tier)
	raw, found, err := s.backend.Get(ctx, physical)
	if err != nil {
		s.logger.Error("cache read failed, treating as miss", "key", key, "tier", tier, "error", err)
		s.miss(tier)
		return nil, false
	}
	if !found {
		s.miss(tier)
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.logger.Error("cache entry corrupt, treating as miss", "key", key, "tier", tier, "error", err)
		s.miss(tier)
		return nil, false
	}
	if s.expired(env.StoredAt, tier) {
		if err := s.backend.Del(ctx, physical); err != nil {
			s.logger.Warn("deleting expired entry failed", "key", key, "error", err)
		}
		s.miss(tier)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(string(tier)).Inc()
	}
	s.logger.Debug("cache hit", "key", key, "tier", tier)
	return env.Payload, true
}

// Set stores value under key in the given tier, reducing recognized payload
// types to their essential fields first. It reports whether the write
// succeeded; failures are logged and swallowed so they never propagate into
// the caller's critical path.
func (s *Store) Set(ctx context.Context, key string, value any, tier Tier, meta *Metadata) bool {
	original, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("cache marshal failed", "key", key, "tier", tier, "error", err)
		s.writeFailure()
		return false
	}

	payloadType := ""
	if meta != nil {
		payloadType = meta.Type
	}
	payload, ratio, compressed := compress(payloadType, original, s.cfg.MaxExcerpts)
	if compressed {
		if s.metrics != nil {
			s.metrics.CompressionRatio.Observe(ratio)
		}
		s.logger.Debug("payload compressed",
			"key", key,
			"type", payloadType,
			"original_bytes", len(original),
			"stored_bytes", len(payload),
			"ratio", fmt.Sprintf("%.2f", ratio),
		)
	}

	env := envelope{
		StoredAt: s.now().UTC(),
		Type:     payloadType,
		Payload:  payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("cache envelope marshal failed", "key", key, "error", err)
		s.writeFailure()
		return false
	}
	if err := s.backend.Set(ctx, s.physicalKey(key, tier), data, tier.MaxAge()); err != nil {
		s.logger.Error("cache write failed", "key", key, "tier", tier, "error", err)
		s.writeFailure()
		return false
	}
	if s.metrics != nil {
		s.metrics.CacheWritesTotal.WithLabelValues(string(tier)).Inc()
	}
	return true
}

// GetOrCompute returns the cached payload or runs computeFn exactly once per
// concurrent key (singleflight), caching its result. The second return value
// reports whether the payload came from cache.
func (s *Store) GetOrCompute(
	ctx context.Context,
	key string,
	tier Tier,
	meta *Metadata,
	computeFn func() (any, error),
) (json.RawMessage, bool, error) {
	if payload, ok := s.Get(ctx, key, tier); ok {
		return payload, true, nil
	}
	val, err, _ := s.group.Do(s.physicalKey(key, tier), func() (interface{}, error) {
		if payload, ok := s.Get(ctx, key, tier); ok {
			return payload, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		s.Set(ctx, key, result, tier, meta)
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshaling computed value: %w", err)
		}
		return json.RawMessage(data), nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(json.RawMessage), false, nil
}

// Invalidate removes key from the given tiers (all tiers when none given).
func (s *Store) Invalidate(ctx context.Context, key string, tiers ...Tier) error {
	if len(tiers) == 0 {
		tiers = Tiers()
	}
	physical := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		physical = append(physical, s.physicalKey(key, tier))
	}
	if err := s.backend.Del(ctx, physical...); err != nil {
		return fmt.Errorf("invalidating %s: %w", key, err)
	}
	s.logger.Info("cache invalidated", "key", key, "tiers", len(tiers))
	return nil
}

// InvalidateTier removes every entry in a tier.
func (s *Store) InvalidateTier(ctx context.Context, tier Tier) (int, error) {
	keys, err := s.backend.ScanKeys(ctx, s.tierPattern(tier))
	if err != nil {
		return 0, fmt.Errorf("scanning tier %s: %w", tier, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.backend.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("invalidating tier %s: %w", tier, err)
	}
	return len(keys), nil
}

// Sweep walks every finite tier and physically deletes entries whose age
// exceeds the tier max age. It returns the number of entries removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	deleted := 0
	for _, tier := range FiniteTiers() {
		keys, err := s.backend.ScanKeys(ctx, s.tierPattern(tier))
		if err != nil {
			return deleted, fmt.Errorf("scanning tier %s: %w", tier, err)
		}
		for _, physical := range keys {
			raw, found, err := s.backend.Get(ctx, physical)
			if err != nil || !found {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				// Corrupt entries are dead weight; remove them too.
				if err := s.backend.Del(ctx, physical); err == nil {
					deleted++
				}
				continue
			}
			if s.expired(env.StoredAt, tier) {
				if err := s.backend.Del(ctx, physical); err != nil {
					s.logger.Warn("sweep delete failed", "key", physical, "error", err)
					continue
				}
				deleted++
			}
		}
	}
	if s.metrics != nil {
		s.metrics.CacheSweepDeleted.Add(float64(deleted))
	}
	if deleted > 0 {
		s.logger.Info("sweep complete", "deleted", deleted)
	}
	return deleted, nil
}

// StartSweepLoop runs Sweep on the configured interval until ctx is
// cancelled.
func (s *Store) StartSweepLoop(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("sweep failed", "error", err)
				}
			}
		}
	}()
	s.logger.Info("sweep loop started", "interval", interval)
}

func (s *Store) expired(storedAt time.Time, tier Tier) bool {
	if tier.Unbounded() {
		return false
	}
	return s.now().Sub(storedAt) >= tier.MaxAge()
}

func (s *Store) miss(tier Tier) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(string(tier)).Inc()
	}
}

func (s *Store) writeFailure() {
	if s.metrics != nil {
		s.metrics.CacheWriteFailures.Inc()
	}
}

// physicalKey hashes the logical key into a fixed-width, filesystem- and
// redis-safe locator namespaced by tier.
func (s *Store) physicalKey(key string, tier Tier) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%s:%x", s.cfg.KeyPrefix, tier, hash[:16])
}

func (s *Store) tierPattern(tier Tier) string {
	return fmt.Sprintf("%s%s:*", s.cfg.KeyPrefix, tier)
}
