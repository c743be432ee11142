// Package vector provides vector storage interfaces and implementations
// for semantic caching.
package vector

import (
	"context"
	"time"
)

// Store defines the interface for vector storage backends. The distance
// metric is pinned to cosine: Score is cosine similarity (1 = identical)
// and Distance = 1 - Score, bounded in [0, 2]. Backends that cannot
// guarantee cosine scoring must not be wired in.
type Store interface {
	// Search finds similar vectors, most similar first, honoring the
	// tenant/model filters in opts.
	Search(ctx context.Context, vector []float64, opts SearchOptions) ([]SearchResult, error)

	// Insert stores a vector with associated payload.
	Insert(ctx context.Context, entry Entry) error

	// Delete removes a vector by ID.
	Delete(ctx context.Context, id string) error

	// Ping checks if the vector store is healthy.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// SearchOptions configures vector search behavior.
type SearchOptions struct {
	// TopK is the maximum number of results to return.
	TopK int

	// TenantID restricts results to a single tenant. Required: semantic
	// lookups are always tenant-scoped.
	TenantID string

	// Model restricts results to entries produced by one model. Empty
	// matches any model.
	Model string

	// DistanceThreshold is the maximum cosine distance for a result to be
	// included. Zero means no threshold.
	DistanceThreshold float64
}

// SearchResult represents a single search result.
type SearchResult struct {
	// ID is the unique identifier of the vector.
	ID string

	// Score is the cosine similarity (1 = identical, 0 = orthogonal).
	Score float64

	// Distance is the cosine distance (0 = identical, 2 = opposite).
	Distance float64

	// Payload contains the cached data associated with this vector.
	Payload Payload
}

// Entry represents a vector entry to be stored.
type Entry struct {
	// ID is the unique identifier for this entry.
	// If empty, a UUID will be generated.
	ID string

	// Vector is the embedding vector.
	Vector []float64

	// Payload contains the data to cache.
	Payload Payload

	// TTL is the time-to-live for this entry.
	// If zero, the entry does not expire.
	TTL time.Duration
}

// Payload contains the cached prompt, response and scoping tags.
type Payload struct {
	// TenantID scopes the entry; search never crosses tenants.
	TenantID string `json:"tenant_id"`

	// Prompt is the original prompt text used to generate the embedding.
	Prompt string `json:"prompt"`

	// Response is the cached LLM response.
	Response string `json:"response"`

	// Model is the model that generated the response.
	Model string `json:"model,omitempty"`

	// CreatedAt is the unix timestamp when this entry was created.
	CreatedAt int64 `json:"created_at,omitempty"`

	// ExpiresAt is the unix timestamp after which the entry is ignored.
	// Zero means no expiry.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}
