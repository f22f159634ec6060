// Package orchestrator composes the cache store, search pipeline, and fetch
// queue into the "get me data for X" entry point: check cache, gather on
// miss, assemble, write through, return. Cache tier selection follows entity
// status: settled entities cache unbounded, active ones on the campaign tier,
// and a detected status change invalidates prior entries instead of serving
// stale data.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civicweave/civicdata/internal/cache"
	"github.com/civicweave/civicdata/internal/search"
	"github.com/civicweave/civicdata/pkg/kafka"
	"github.com/civicweave/civicdata/pkg/logger"
)

// EntityKind classifies the tracked entity.
type EntityKind string

const (
	KindBill           EntityKind = "bill"
	KindRepresentative EntityKind = "representative"
	KindTopic          EntityKind = "topic"
)

// Request asks for assembled coverage of one entity. Status is the caller's
// current knowledge of the entity's lifecycle state (e.g. a bill's
// "introduced" or "became_law"); the StatusPolicy decides what it means.
type Request struct {
	EntityID string     `json:"entity_id"`
	Kind     EntityKind `json:"kind"`
	Query    string     `json:"query"`
	Topic    string     `json:"topic,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Analysis is the assembled, cacheable answer.
type Analysis struct {
	EntityID     string          `json:"entity_id"`
	Kind         EntityKind      `json:"kind"`
	Status       string          `json:"status,omitempty"`
	Settled      bool            `json:"settled"`
	Articles     []search.Result `json:"articles"`
	Degraded     bool            `json:"degraded"`
	UsedFallback bool            `json:"used_fallback"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// InvalidationEvent is published when an entity's cached analysis is purged,
// so peer processes can drop their entries too.
type InvalidationEvent struct {
	EntityID string    `json:"entity_id"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// StatusPolicy decides whether an entity's state is final. How a state change
// (e.g. an amendment) is detected is deliberately pluggable; the default
// compares reported status strings against a settled set.
type StatusPolicy interface {
	Settled(kind EntityKind, status string) bool
}

// DefaultStatusPolicy treats terminal legislative statuses as settled.
type DefaultStatusPolicy struct{}

var settledStatuses = map[string]struct{}{
	"passed":     {},
	"failed":     {},
	"enacted":    {},
	"became_law": {},
	"vetoed":     {},
	"withdrawn":  {},
	"defeated":   {},
}

func (DefaultStatusPolicy) Settled(kind EntityKind, status string) bool {
	_, ok := settledStatuses[strings.ToLower(status)]
	return ok
}

// Orchestrator wires the lower components through their public contracts. It
// holds no rate-limiting or scoring logic of its own.
type Orchestrator struct {
	cache    *cache.Store
	search   *search.Service
	policy   StatusPolicy
	producer *kafka.Producer
	logger   *slog.Logger

	// keysMu guards the per-entity registry of logical cache keys, needed
	// because physical keys are hashes and cannot be enumerated by entity.
	keysMu     sync.Mutex
	keys       map[string]map[string]struct{}
	lastStatus map[string]string
}

// New creates an Orchestrator. policy defaults to DefaultStatusPolicy;
// producer may be nil to disable invalidation events.
func New(cacheStore *cache.Store, searchSvc *search.Service, policy StatusPolicy, producer *kafka.Producer) *Orchestrator {
	if policy == nil {
		policy = DefaultStatusPolicy{}
	}
	return &Orchestrator{
		cache:      cacheStore,
		search:     searchSvc,
		policy:     policy,
		producer:   producer,
		logger:     logger.WithComponent("orchestrator"),
		keys:       make(map[string]map[string]struct{}),
		lastStatus: make(map[string]string),
	}
}

// Analyze returns the cached analysis for the request or assembles a fresh
// one: search (with live fallback) gathers supporting articles, the result is
// written through to the tier the entity's status earns, and concurrent
// requests for the same key collapse into one computation.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if req.EntityID == "" || req.Kind == "" {
		return nil, fmt.Errorf("entity id and kind are required")
	}
	if o.detectStatusChange(req) {
		if err := o.Invalidate(ctx, req.EntityID, "status changed to "+req.Status); err != nil {
			o.logger.Warn("invalidation on status change failed",
				"entity", req.EntityID,
				"error", err,
			)
		}
	}

	settled := o.policy.Settled(req.Kind, req.Status)
	tier := cache.TierCampaign
	if settled {
		tier = cache.TierHistorical
	}
	key := deriveKey(req)
	o.rememberKey(req.EntityID, key)

	payload, fromCache, err := o.cache.GetOrCompute(ctx, key, tier, nil, func() (any, error) {
		return o.assemble(ctx, req, settled), nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing %s/%s: %w", req.Kind, req.EntityID, err)
	}

	var analysis Analysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, fmt.Errorf("decoding cached analysis: %w", err)
	}
	o.logger.Debug("analysis served",
		"entity", req.EntityID,
		"kind", req.Kind,
		"tier", tier,
		"from_cache", fromCache,
		"articles", len(analysis.Articles),
	)
	return &analysis, nil
}

// Invalidate purges every cached analysis for the entity across all tiers
// and publishes an invalidation event.
func (o *Orchestrator) Invalidate(ctx context.Context, entityID string, reason string) error {
	o.keysMu.Lock()
	keys := make([]string, 0, len(o.keys[entityID]))
	for key := range o.keys[entityID] {
		keys = append(keys, key)
	}
	delete(o.keys, entityID)
	o.keysMu.Unlock()
	sort.Strings(keys)

	for _, key := range keys {
		if err := o.cache.Invalidate(ctx, key, cache.TierCampaign, cache.TierHistorical); err != nil {
			return err
		}
	}
	o.logger.Info("entity invalidated", "entity", entityID, "keys", len(keys), "reason", reason)

	if o.producer != nil {
		event := kafka.Event{
			Key: entityID,
			Value: InvalidationEvent{
				EntityID: entityID,
				Reason:   reason,
				At:       time.Now().UTC(),
			},
		}
		if err := o.producer.Publish(ctx, event); err != nil {
			// The local purge already happened; event delivery is
			// best-effort.
			o.logger.Error("publishing invalidation event failed",
				"entity", entityID,
				"error", err,
			)
		}
	}
	return nil
}

// HandleInvalidation is the kafka consumer handler for invalidation events
// originating elsewhere.
func (o *Orchestrator) HandleInvalidation(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[InvalidationEvent](value)
	if err != nil {
		return err
	}
	o.keysMu.Lock()
	keys := make([]string, 0, len(o.keys[event.EntityID]))
	for k := range o.keys[event.EntityID] {
		keys = append(keys, k)
	}
	delete(o.keys, event.EntityID)
	o.keysMu.Unlock()

	for _, k := range keys {
		if err := o.cache.Invalidate(ctx, k, cache.TierCampaign, cache.TierHistorical); err != nil {
			return err
		}
	}
	o.logger.Info("remote invalidation applied", "entity", event.EntityID, "reason", event.Reason)
	return nil
}

// assemble gathers supporting articles for the request. Gather failures
// degrade the result rather than failing it; callers prefer a thin answer
// over an error.
func (o *Orchestrator) assemble(ctx context.Context, req Request, settled bool) Analysis {
	query := req.Query
	if query == "" {
		query = req.EntityID
	}
	found := o.search.SearchEntity(ctx, query, req.Topic, true)
	return Analysis{
		EntityID:     req.EntityID,
		Kind:         req.Kind,
		Status:       req.Status,
		Settled:      settled,
		Articles:     found.Results,
		Degraded:     found.Degraded,
		UsedFallback: found.UsedFallback,
		GeneratedAt:  time.Now().UTC(),
	}
}

// detectStatusChange records the latest reported status per entity and
// reports whether it moved, which stands in for amendment detection.
func (o *Orchestrator) detectStatusChange(req Request) bool {
	if req.Status == "" {
		return false
	}
	o.keysMu.Lock()
	defer o.keysMu.Unlock()
	prev, seen := o.lastStatus[req.EntityID]
	o.lastStatus[req.EntityID] = req.Status
	return seen && prev != req.Status
}

func (o *Orchestrator) rememberKey(entityID string, key string) {
	o.keysMu.Lock()
	defer o.keysMu.Unlock()
	if o.keys[entityID] == nil {
		o.keys[entityID] = make(map[string]struct{})
	}
	o.keys[entityID][key] = struct{}{}
}

// deriveKey builds the logical cache key from the entity and the normalized
// query shape, so distinct queries about one entity cache independently.
func deriveKey(req Request) string {
	terms := search.Tokenize(req.Query + " " + req.Topic)
	sort.Strings(terms)
	return fmt.Sprintf("analysis:%s:%s:%s", req.Kind, req.EntityID, strings.Join(terms, ","))
}
