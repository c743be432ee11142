// Package semantic provides the embedding-similarity response cache
// (Tier 2). Lookups embed the query and run a tenant-scoped nearest
// neighbor search; the top candidate is a hit only when its cosine
// similarity reaches the configured threshold.
package semantic

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blueberrycongee/costgate/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
	"github.com/blueberrycongee/costgate/internal/metrics"
)

// Cache implements semantic caching using vector similarity.
type Cache struct {
	embedder            embedding.Embedder
	vectorStore         vector.Store
	similarityThreshold float64
	defaultTTL          time.Duration

	hits       atomic.Int64
	misses     atomic.Int64
	sets       atomic.Int64
	errors     atomic.Int64
	embedCalls atomic.Int64
}

// Config holds configuration for the semantic cache.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a hit
	// (0.0-1.0). The comparison is inclusive: a candidate exactly at the
	// threshold is a hit.
	SimilarityThreshold float64

	// DefaultTTL is applied to entries stored without an explicit TTL.
	DefaultTTL time.Duration
}

// New creates a semantic cache with the given embedder and vector store.
func New(embedder embedding.Embedder, store vector.Store, cfg Config) (*Cache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}

	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	return &Cache{
		embedder:            embedder,
		vectorStore:         store,
		similarityThreshold: cfg.SimilarityThreshold,
		defaultTTL:          cfg.DefaultTTL,
	}, nil
}

// Result represents a semantic cache hit.
type Result struct {
	// Response is the cached LLM response.
	Response string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64

	// CachedPrompt is the original prompt that was cached.
	CachedPrompt string

	// Model is the model that generated the cached response.
	Model string
}

// Get retrieves a cached response for a semantically similar prompt within
// the tenant's namespace. Returns nil on a miss. A non-empty model narrows
// the search to entries produced by that model.
func (c *Cache) Get(ctx context.Context, tenantID, prompt, model string) (*Result, error) {
	if prompt == "" || tenantID == "" {
		c.misses.Add(1)
		return nil, nil
	}

	emb, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	c.embedCalls.Add(1)

	// The inclusive threshold check below is authoritative; no distance
	// threshold is pushed into the search, so a candidate exactly at the
	// threshold can never be pruned early by rounding.
	results, err := c.vectorStore.Search(ctx, emb, vector.SearchOptions{
		TopK:     1,
		TenantID: tenantID,
		Model:    model,
	})
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if len(results) == 0 {
		c.misses.Add(1)
		return nil, nil
	}

	top := results[0]
	metrics.SemanticSimilarity.Observe(top.Score)
	if top.Score < c.similarityThreshold {
		c.misses.Add(1)
		return nil, nil
	}

	c.hits.Add(1)
	return &Result{
		Response:     top.Payload.Response,
		Similarity:   top.Score,
		CachedPrompt: top.Payload.Prompt,
		Model:        top.Payload.Model,
	}, nil
}

// Set stores a response in the semantic cache under the tenant's namespace.
func (c *Cache) Set(ctx context.Context, tenantID, prompt, response, model string, ttl time.Duration) error {
	if prompt == "" || response == "" || tenantID == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	emb, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("generate embedding: %w", err)
	}
	c.embedCalls.Add(1)

	entry := vector.Entry{
		ID:     uuid.New().String(),
		Vector: emb,
		Payload: vector.Payload{
			TenantID:  tenantID,
			Prompt:    prompt,
			Response:  response,
			Model:     model,
			CreatedAt: time.Now().Unix(),
		},
		TTL: ttl,
	}

	if err := c.vectorStore.Insert(ctx, entry); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("vector insert: %w", err)
	}

	c.sets.Add(1)
	return nil
}

// Ping checks if the cache is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.vectorStore.Ping(ctx)
}

// Close releases resources held by the cache.
func (c *Cache) Close() error {
	return c.vectorStore.Close()
}

// SimilarityThreshold returns the configured similarity threshold.
func (c *Cache) SimilarityThreshold() float64 {
	return c.similarityThreshold
}

// Stats holds semantic cache statistics.
type Stats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Sets       int64   `json:"sets"`
	Errors     int64   `json:"errors"`
	EmbedCalls int64   `json:"embed_calls"`
	HitRate    float64 `json:"hit_rate"`
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:       hits,
		Misses:     misses,
		Sets:       c.sets.Load(),
		Errors:     c.errors.Load(),
		EmbedCalls: c.embedCalls.Load(),
		HitRate:    hitRate,
	}
}
