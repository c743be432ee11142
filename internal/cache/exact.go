// Package cache implements the response cache for completed requests.
//
// Two tiers are involved: an exact-match tier keyed by a hash of the
// normalized prompt, and a semantic tier backed by vector similarity
// search (see the semantic subpackage). ResponseCache combines them
// into a single lookup path. Intermediate workflow results live in the
// intermediate subpackage and are not part of this package.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/costgate/internal/metrics"
)

// DefaultExactTTL is applied when no TTL is configured for exact entries.
const DefaultExactTTL = time.Hour

// ExactEntry is the stored payload for an exact-match cache entry.
type ExactEntry struct {
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// ExactCache is the exact-match response cache tier. Entries are keyed
// by a SHA-256 hash of the normalized prompt, scoped per tenant so one
// tenant can never read another tenant's responses.
type ExactCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// ExactConfig holds configuration for ExactCache.
type ExactConfig struct {
	// Prefix namespaces all keys (default: "exact").
	Prefix string

	// TTL is the lifetime of stored entries (default: DefaultExactTTL).
	TTL time.Duration

	// Logger receives degraded-operation warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewExactCache creates an exact-match cache over the given Redis client.
func NewExactCache(client redis.UniversalClient, cfg ExactConfig) *ExactCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "exact"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultExactTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ExactCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

// NormalizePrompt canonicalizes a prompt for exact-match keying:
// surrounding whitespace is stripped and the text is lowercased, so
// trivially reworded duplicates ("What is X?" vs "what is x?  ") share
// one entry.
func NormalizePrompt(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

// Key returns the Redis key for a tenant/prompt pair.
func (c *ExactCache) Key(tenantID, prompt string) string {
	sum := sha256.Sum256([]byte(NormalizePrompt(prompt)))
	return fmt.Sprintf("%s:%s:%s", c.prefix, tenantID, hex.EncodeToString(sum[:]))
}

// Get looks up a cached response for the exact prompt. Returns nil on a
// miss. Backend errors degrade to a miss so the request path never fails
// on cache problems.
func (c *ExactCache) Get(ctx context.Context, tenantID, prompt string) (*ExactEntry, error) {
	data, err := c.client.Get(ctx, c.Key(tenantID, prompt)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("exact", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		c.errors.Add(1)
		metrics.CacheLookups.WithLabelValues("exact", "error").Inc()
		c.logger.WarnContext(ctx, "exact cache read failed, treating as miss",
			"tenant_id", tenantID, "error", err)
		return nil, nil
	}

	var entry ExactEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.errors.Add(1)
		metrics.CacheLookups.WithLabelValues("exact", "error").Inc()
		c.logger.WarnContext(ctx, "exact cache entry corrupt, treating as miss",
			"tenant_id", tenantID, "error", err)
		return nil, nil
	}

	c.hits.Add(1)
	metrics.CacheLookups.WithLabelValues("exact", "hit").Inc()
	return &entry, nil
}

// Set stores a response for the exact prompt.
func (c *ExactCache) Set(ctx context.Context, tenantID, prompt, response, model string) error {
	entry := ExactEntry{
		Response:  response,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal exact entry: %w", err)
	}

	if err := c.client.Set(ctx, c.Key(tenantID, prompt), data, c.ttl).Err(); err != nil {
		c.errors.Add(1)
		metrics.CacheWriteFailures.WithLabelValues("exact").Inc()
		return fmt.Errorf("store exact entry: %w", err)
	}

	c.sets.Add(1)
	return nil
}

// Delete removes a cached entry.
func (c *ExactCache) Delete(ctx context.Context, tenantID, prompt string) error {
	return c.client.Del(ctx, c.Key(tenantID, prompt)).Err()
}

// Stats returns exact-tier statistics.
func (c *ExactCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Tier:    TierExact,
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Errors:  c.errors.Load(),
		HitRate: hitRate,
	}
}
