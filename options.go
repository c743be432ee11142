package costgate

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/costgate/internal/cache/intermediate"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
	"github.com/blueberrycongee/costgate/internal/config"
	"github.com/blueberrycongee/costgate/internal/pricing"
)

// Enricher optionally rewrites a prompt before it enters the pipeline
// (context injection, PII scrubbing, template expansion). If it returns
// an error the raw prompt is used and the failure is logged.
type Enricher func(ctx context.Context, tenantID, prompt string) (string, error)

// ClientConfig holds all configuration for the costgate client.
type ClientConfig struct {
	// Redis is the shared store for the exact cache tier, the rate
	// limiter window, and the usage counters. Either Redis or RedisAddr
	// must be set.
	Redis     redis.UniversalClient
	RedisAddr string

	// Infer executes a single workflow step against a model provider.
	// Required.
	Infer InferFunc

	// Enricher is the optional pre-pipeline prompt hook.
	Enricher Enricher

	// Embedder powers the semantic tier. Defaults to the deterministic
	// hash embedder so the tier works without a remote model.
	Embedder embedding.Embedder

	// VectorStore backs the semantic tier. Defaults to the in-memory store.
	VectorStore vector.Store

	// IntermediateStore backs the workflow step cache. Defaults to the
	// in-memory store; pass a Redis-backed store to share step results
	// across instances.
	IntermediateStore intermediate.Store

	// SemanticDisabled turns the semantic tier off entirely.
	SemanticDisabled bool

	// Pricing overrides the built-in model price table.
	Pricing []pricing.ModelPricing

	// SimilarityThreshold is the minimum cosine similarity for a
	// semantic hit (default: 0.85, inclusive).
	SimilarityThreshold float64

	// ResponseTTL is the lifetime of exact and semantic entries
	// (default: 1 hour).
	ResponseTTL time.Duration

	// IntermediateTTL is the lifetime of workflow step results
	// (default: 24 hours).
	IntermediateTTL time.Duration

	// MaxSteps caps decomposition fan-out (default: 10).
	MaxSteps int

	// DefaultRPMLimit applies when a request's tenant carries no
	// per-minute limit of its own. Zero disables the default.
	DefaultRPMLimit int64

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock is swappable for tests. Defaults to time.Now.
	Clock func() time.Time

	// ConfigFile, when set, is loaded first; explicit options override
	// its values.
	ConfigFile string

	// fileRedis carries the full Redis section of a loaded config file
	// so connection tuning survives the RedisAddr path.
	fileRedis *config.RedisConfig

	// meterDailyTTL and meterMonthlyTTL carry counter retention from a
	// loaded config file. Zero keeps the metering defaults.
	meterDailyTTL   time.Duration
	meterMonthlyTTL time.Duration
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		SimilarityThreshold: 0.85,
		ResponseTTL:         time.Hour,
		IntermediateTTL:     24 * time.Hour,
		MaxSteps:            10,
		Logger:              slog.Default(),
		Clock:               time.Now,
	}
}

// WithRedis sets a pre-built Redis client.
func WithRedis(client redis.UniversalClient) Option {
	return func(c *ClientConfig) {
		c.Redis = client
	}
}

// WithRedisAddr connects to Redis at the given address.
func WithRedisAddr(addr string) Option {
	return func(c *ClientConfig) {
		c.RedisAddr = addr
	}
}

// WithInferFunc sets the step executor. Required.
func WithInferFunc(fn InferFunc) Option {
	return func(c *ClientConfig) {
		c.Infer = fn
	}
}

// WithEnricher sets the pre-pipeline prompt hook.
func WithEnricher(e Enricher) Option {
	return func(c *ClientConfig) {
		c.Enricher = e
	}
}

// WithEmbedder sets the embedding provider for the semantic tier.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *ClientConfig) {
		c.Embedder = e
	}
}

// WithVectorStore sets the vector backend for the semantic tier.
func WithVectorStore(s vector.Store) Option {
	return func(c *ClientConfig) {
		c.VectorStore = s
	}
}

// WithIntermediateStore sets the backend for workflow step results.
func WithIntermediateStore(s intermediate.Store) Option {
	return func(c *ClientConfig) {
		c.IntermediateStore = s
	}
}

// WithoutSemanticCache disables the semantic tier; lookups use exact
// matching only.
func WithoutSemanticCache() Option {
	return func(c *ClientConfig) {
		c.SemanticDisabled = true
	}
}

// WithPricing replaces the built-in model price table.
func WithPricing(table []pricing.ModelPricing) Option {
	return func(c *ClientConfig) {
		c.Pricing = table
	}
}

// WithSimilarityThreshold sets the semantic hit threshold (0.0-1.0,
// inclusive at the boundary).
func WithSimilarityThreshold(threshold float64) Option {
	return func(c *ClientConfig) {
		c.SimilarityThreshold = threshold
	}
}

// WithResponseTTL sets the lifetime of cached responses.
func WithResponseTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.ResponseTTL = ttl
	}
}

// WithIntermediateTTL sets the lifetime of cached step results.
func WithIntermediateTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.IntermediateTTL = ttl
	}
}

// WithMaxSteps caps how many steps a prompt may decompose into.
func WithMaxSteps(n int) Option {
	return func(c *ClientConfig) {
		c.MaxSteps = n
	}
}

// WithDefaultRPMLimit sets the per-minute limit used for tenants that
// carry none of their own.
func WithDefaultRPMLimit(limit int64) Option {
	return func(c *ClientConfig) {
		c.DefaultRPMLimit = limit
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *ClientConfig) {
		c.Clock = clock
	}
}

// WithConfigFile loads settings from a YAML file. Options applied after
// this one override the file's values.
func WithConfigFile(path string) Option {
	return func(c *ClientConfig) {
		c.ConfigFile = path
	}
}
