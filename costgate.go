// Package costgate is the cost-control core of an LLM inference
// gateway, usable as a Go library. It decides, for every request,
// whether the tenant may proceed (sliding-window rate limit, monthly
// request cap, monthly budget), whether the answer can come from a
// cache instead of a model (exact match, semantic similarity, or cached
// intermediate workflow steps), and what the request cost or saved
// (token metering and per-model pricing).
//
// Model inference itself is injected: callers supply an InferFunc that
// executes one workflow step, and costgate orchestrates everything
// around it.
//
// Basic usage:
//
//	client, err := costgate.New(
//	    costgate.WithRedisAddr("localhost:6379"),
//	    costgate.WithInferFunc(func(ctx context.Context, step costgate.Step) (costgate.StepResult, error) {
//	        text, err := callProvider(ctx, step.InputText)
//	        return costgate.StepResult{Text: text}, err
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.Complete(ctx, &costgate.Request{
//	    Tenant: costgate.TenantContext{ID: "acme", RPMLimit: 60, MonthlyBudgetUSD: 100},
//	    Prompt: "Summarize the attached contract.",
//	    Model:  "gpt-4o-mini",
//	})
package costgate

import (
	"time"

	"github.com/blueberrycongee/costgate/internal/cache/intermediate"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
	"github.com/blueberrycongee/costgate/internal/pricing"
	"github.com/blueberrycongee/costgate/internal/workflow"

	"github.com/redis/go-redis/v9"
)

// Version is the current version of costgate.
const Version = "0.3.0"

// Re-export the types callers need to implement or inspect, so the
// public surface is this single package.
type (
	// Step is one unit of a decomposed prompt, handed to InferFunc.
	Step = workflow.Step

	// StepType classifies what a workflow step asks the model to do.
	StepType = workflow.StepType

	// Embedder turns text into fixed-dimension vectors for the
	// semantic tier.
	Embedder = embedding.Embedder

	// VectorStore persists and searches embeddings for the semantic tier.
	VectorStore = vector.Store

	// VectorSearchOptions narrows a vector search.
	VectorSearchOptions = vector.SearchOptions

	// VectorSearchResult is one scored match from a vector search.
	VectorSearchResult = vector.SearchResult

	// VectorEntry is one stored embedding with its payload.
	VectorEntry = vector.Entry

	// VectorPayload is the metadata stored alongside an embedding.
	VectorPayload = vector.Payload

	// IntermediateStore persists workflow step results.
	IntermediateStore = intermediate.Store

	// ModelPricing is one row of the per-model price table.
	ModelPricing = pricing.ModelPricing
)

// Step types produced by the decomposer.
const (
	StepSummarize = workflow.StepSummarize
	StepExtract   = workflow.StepExtract
	StepClassify  = workflow.StepClassify
	StepAnswer    = workflow.StepAnswer
)

// NewHashEmbedder returns the deterministic fallback embedder: unit
// vectors derived from a hash of the text, reproducible across runs.
// Pass 0 for the default dimension.
func NewHashEmbedder(dimension int) Embedder {
	return embedding.NewHashEmbedder(dimension)
}

// OpenAIEmbedderConfig configures an OpenAI-compatible embedding API.
type OpenAIEmbedderConfig = embedding.OpenAIConfig

// NewOpenAIEmbedder returns an embedder backed by an OpenAI-compatible
// embeddings endpoint.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (Embedder, error) {
	return embedding.NewOpenAIEmbedder(cfg)
}

// NewMemoryVectorStore returns the in-process vector store used by
// default for the semantic tier.
func NewMemoryVectorStore() VectorStore {
	return vector.NewMemoryStore()
}

// QdrantConfig configures a Qdrant-backed vector store.
type QdrantConfig = vector.QdrantConfig

// NewQdrantVectorStore returns a vector store backed by a Qdrant
// collection, for semantic caching shared across instances.
func NewQdrantVectorStore(cfg QdrantConfig) (VectorStore, error) {
	return vector.NewQdrantStore(cfg)
}

// NewMemoryIntermediateStore returns the in-process step-result store
// used by default for the intermediate tier.
func NewMemoryIntermediateStore(defaultTTL time.Duration) IntermediateStore {
	return intermediate.NewMemoryStore(defaultTTL)
}

// NewRedisIntermediateStore returns a step-result store on the given
// Redis client, for sharing intermediate results across instances.
// An empty namespace uses the default prefix.
func NewRedisIntermediateStore(client redis.UniversalClient, namespace string) IntermediateStore {
	return intermediate.NewRedisStore(client, namespace)
}

// DefaultPricing is the built-in per-model price table.
var DefaultPricing = pricing.DefaultPricing
