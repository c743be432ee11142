package intermediate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/costgate/internal/metrics"
	"github.com/blueberrycongee/costgate/internal/workflow"
)

// Executor computes the result for one workflow step. An executor error
// propagates to the caller and the step stays uncached, so the next call
// retries it.
type Executor func(ctx context.Context, step workflow.Step) (string, error)

// Cache is the Tier 3 intermediate cache. Store failures degrade to misses
// and are logged, never surfaced; the only error ExecuteWorkflow returns is
// the executor's own.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	logger     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Config holds configuration for the intermediate cache.
type Config struct {
	DefaultTTL time.Duration // Entry TTL (default: 24 hours)
	Logger     *slog.Logger
}

// New creates a Tier 3 cache over the given store.
func New(store Store, cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		store:      store,
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger,
	}
}

// Get returns the cached entry for the composite key, or nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) *Entry {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("intermediate cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("3", "miss").Inc()
		return nil
	}
	if entry == nil {
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("3", "miss").Inc()
		return nil
	}

	c.hits.Add(1)
	metrics.CacheLookups.WithLabelValues("3", "hit").Inc()
	return entry
}

// Set unconditionally overwrites the entry for key, resetting its stored-at
// timestamp and TTL.
func (c *Cache) Set(ctx context.Context, key, result string, metadata map[string]string) {
	entry := &Entry{
		Result:   result,
		Metadata: metadata,
		StoredAt: time.Now().Unix(),
	}
	if err := c.store.Set(ctx, key, entry, c.defaultTTL); err != nil {
		c.logger.Warn("intermediate cache set failed", "key", key, "error", err)
		metrics.CacheWriteFailures.WithLabelValues("3").Inc()
	}
}

// Invalidate removes the entry for key and reports whether it existed.
func (c *Cache) Invalidate(ctx context.Context, key string) bool {
	existed, err := c.store.Delete(ctx, key)
	if err != nil {
		c.logger.Warn("intermediate cache invalidate failed", "key", key, "error", err)
		return false
	}
	return existed
}

// InvalidateByDocument removes every entry whose key starts with
// "{documentID}:" and returns the number of removed entries.
func (c *Cache) InvalidateByDocument(ctx context.Context, documentID string) int {
	if documentID == "" {
		return 0
	}
	removed, err := c.store.DeleteByPrefix(ctx, documentID+":")
	if err != nil {
		c.logger.Warn("intermediate cache invalidate by document failed",
			"document_id", documentID, "error", err)
	}
	return removed
}

// ExecuteWorkflow resolves each step through the cache: hits fill the step
// result from the store, misses run the executor and cache its output. Each
// step executes at most once per call; concurrent identical builds across
// simultaneous requests are accepted, not prevented. An executor error
// aborts and propagates with the failing step uncached.
func (c *Cache) ExecuteWorkflow(ctx context.Context, steps []workflow.Step, executor Executor) ([]workflow.Step, error) {
	for i := range steps {
		if entry := c.Get(ctx, steps[i].CacheKey); entry != nil {
			steps[i].Result = entry.Result
			continue
		}

		result, err := executor(ctx, steps[i])
		if err != nil {
			return steps, err
		}

		c.Set(ctx, steps[i].CacheKey, result, map[string]string{
			"step_type": string(steps[i].Type),
			"step_id":   steps[i].ID,
		})
		steps[i].Result = result
	}
	return steps, nil
}

// Stats describes Tier 3 cache effectiveness.
type Stats struct {
	Tier       int     `json:"tier"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	EntryCount int     `json:"entry_count"`
}

// Stats returns cache statistics.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	count, err := c.store.Len(ctx)
	if err != nil {
		c.logger.Warn("intermediate cache len failed", "error", err)
	}

	return Stats{
		Tier:       3,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		EntryCount: count,
	}
}
