package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/costgate/internal/cache/semantic"
)

// Tier identifies which cache layer served a response.
type Tier int

const (
	// TierExact is the exact-match tier (normalized prompt hash).
	TierExact Tier = 1

	// TierSemantic is the similarity-search tier.
	TierSemantic Tier = 2
)

// String returns a label suitable for logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// Hit describes a response served from the cache.
type Hit struct {
	// Tier is the layer that produced the hit.
	Tier Tier

	// Response is the cached LLM response.
	Response string

	// Model is the model that generated the cached response.
	Model string

	// Similarity is 1.0 for exact hits, the cosine score for semantic hits.
	Similarity float64
}

// Stats holds per-tier cache statistics.
type Stats struct {
	Tier    Tier    `json:"tier"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// ResponseCache combines the exact and semantic tiers into one lookup
// path. The exact tier is consulted first; the semantic tier only runs
// on an exact miss, which keeps embedding calls off the hot path for
// repeated identical prompts.
type ResponseCache struct {
	exact    *ExactCache
	semantic *semantic.Cache
	ttl      time.Duration
	logger   *slog.Logger

	// writeback tracks in-flight asynchronous stores so Close can drain them.
	writeback sync.WaitGroup
}

// ResponseCacheConfig holds configuration for ResponseCache.
type ResponseCacheConfig struct {
	// TTL applies to semantic-tier writes (default: DefaultExactTTL).
	TTL time.Duration

	// Logger receives degraded-operation warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewResponseCache creates a combined response cache. The semantic tier
// may be nil, in which case only exact matching is performed.
func NewResponseCache(exact *ExactCache, sem *semantic.Cache, cfg ResponseCacheConfig) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultExactTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ResponseCache{
		exact:    exact,
		semantic: sem,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
	}
}

// Lookup checks both tiers for a cached response. Returns nil on a full
// miss. Tier failures are logged and degrade to a miss; a broken cache
// must never fail the request.
func (c *ResponseCache) Lookup(ctx context.Context, tenantID, prompt, model string) (*Hit, error) {
	if entry, err := c.exact.Get(ctx, tenantID, prompt); err == nil && entry != nil {
		return &Hit{
			Tier:       TierExact,
			Response:   entry.Response,
			Model:      entry.Model,
			Similarity: 1.0,
		}, nil
	}

	if c.semantic == nil {
		return nil, nil
	}

	res, err := c.semantic.Get(ctx, tenantID, prompt, model)
	if err != nil {
		c.logger.WarnContext(ctx, "semantic cache lookup failed, treating as miss",
			"tenant_id", tenantID, "error", err)
		return nil, nil
	}
	if res == nil {
		return nil, nil
	}

	return &Hit{
		Tier:       TierSemantic,
		Response:   res.Response,
		Model:      res.Model,
		Similarity: res.Similarity,
	}, nil
}

// Store writes a response to both tiers. Per-tier failures are logged;
// the first error is returned for callers that care.
func (c *ResponseCache) Store(ctx context.Context, tenantID, prompt, response, model string) error {
	var firstErr error

	if err := c.exact.Set(ctx, tenantID, prompt, response, model); err != nil {
		c.logger.WarnContext(ctx, "exact cache write failed",
			"tenant_id", tenantID, "error", err)
		firstErr = err
	}

	if c.semantic != nil {
		if err := c.semantic.Set(ctx, tenantID, prompt, response, model, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "semantic cache write failed",
				"tenant_id", tenantID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// StoreAsync writes a response to both tiers in the background so the
// caller can return the fresh response without waiting on cache writes.
// The write uses its own timeout rather than the request context, which
// is typically cancelled as soon as the response is delivered.
func (c *ResponseCache) StoreAsync(tenantID, prompt, response, model string) {
	c.writeback.Add(1)
	go func() {
		defer c.writeback.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = c.Store(ctx, tenantID, prompt, response, model)
	}()
}

// Close drains in-flight asynchronous writes.
func (c *ResponseCache) Close() error {
	c.writeback.Wait()
	if c.semantic != nil {
		return c.semantic.Close()
	}
	return nil
}

// Stats returns statistics for both tiers. The semantic slot is zero
// when no semantic tier is configured.
func (c *ResponseCache) Stats() (exact Stats, sem semantic.Stats) {
	exact = c.exact.Stats()
	if c.semantic != nil {
		sem = c.semantic.Stats()
	}
	return exact, sem
}
