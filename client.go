package costgate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/costgate/internal/cache"
	"github.com/blueberrycongee/costgate/internal/cache/intermediate"
	"github.com/blueberrycongee/costgate/internal/cache/semantic"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/costgate/internal/cache/semantic/vector"
	"github.com/blueberrycongee/costgate/internal/config"
	"github.com/blueberrycongee/costgate/internal/metering"
	"github.com/blueberrycongee/costgate/internal/metrics"
	"github.com/blueberrycongee/costgate/internal/observability"
	"github.com/blueberrycongee/costgate/internal/pricing"
	"github.com/blueberrycongee/costgate/internal/ratelimit"
	"github.com/blueberrycongee/costgate/internal/tokenizer"
	"github.com/blueberrycongee/costgate/internal/workflow"
)

// TenantContext identifies the requesting tenant and its limits. Zero
// limit values mean "no limit of this kind".
type TenantContext struct {
	// ID is the tenant identifier and the leading segment of every key
	// the tenant owns. Empty ID bypasses admission checks entirely.
	ID string

	// RPMLimit is the per-minute request limit. Zero falls back to the
	// client's default limit; negative disables the check.
	RPMLimit int64

	// MonthlyRequestLimit caps requests per calendar month. Zero or
	// negative disables the check.
	MonthlyRequestLimit int64

	// MonthlyBudgetUSD caps spend per calendar month. Zero or negative
	// disables the check.
	MonthlyBudgetUSD float64
}

// Request is one inference request entering the pipeline.
type Request struct {
	Tenant TenantContext

	// Prompt is the user's full prompt text.
	Prompt string

	// Model is the target model name, used for cache scoping, token
	// counting, and pricing.
	Model string

	// DocumentID ties the request to a document so its intermediate
	// results can be invalidated together. Optional.
	DocumentID string

	// TaskType hints the step type for single-step prompts
	// (summarize, extract, classify, answer). Optional.
	TaskType string
}

// Usage holds token counts consumed by a request.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// StepResult is what the injected inference function returns for one
// workflow step. Token counts may be zero, in which case they are
// estimated from the text.
type StepResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// InferFunc executes one workflow step against a model provider. It is
// only called for steps the intermediate cache cannot serve.
type InferFunc func(ctx context.Context, step workflow.Step) (StepResult, error)

// Response is the pipeline's answer to one request.
type Response struct {
	// Text is the final answer.
	Text string

	// Model is the model that produced (or originally produced) the answer.
	Model string

	// CacheTier is 1 or 2 when the whole response came from the cache,
	// 0 when it was computed.
	CacheTier int

	// Similarity is 1.0 for exact hits, the cosine score for semantic
	// hits, 0 for computed responses.
	Similarity float64

	// Steps holds the resolved workflow steps for computed responses.
	Steps []workflow.Step

	// Usage, CostUSD and SavingsUSD are what this request consumed and
	// what the cache avoided.
	Usage      Usage
	CostUSD    float64
	SavingsUSD float64
}

// Client is the cost-control core of an inference gateway: workflow
// decomposition, three cache tiers, per-minute rate limiting, and
// usage/budget metering, assembled into one Complete call.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	config *ClientConfig
	logger *slog.Logger

	redis         redis.UniversalClient
	ownsRedis     bool
	decomposer    *workflow.Decomposer
	responseCache *cache.ResponseCache
	intermediate  *intermediate.Cache
	limiter       *ratelimit.Limiter
	meter         *metering.Meter
	pricing       *pricing.Calculator
}

// New creates a client with the given options. An inference function
// and a Redis connection are required; everything else has defaults.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.ConfigFile != "" {
		if err := applyFileConfig(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if cfg.Infer == nil {
		return nil, fmt.Errorf("an inference function is required (use WithInferFunc)")
	}

	c := &Client{
		config: cfg,
		logger: cfg.Logger,
	}

	switch {
	case cfg.Redis != nil:
		c.redis = cfg.Redis
	case cfg.RedisAddr != "":
		ropts := &redis.Options{Addr: cfg.RedisAddr}
		if fr := cfg.fileRedis; fr != nil && fr.Addr == cfg.RedisAddr {
			ropts.Password = fr.Password
			ropts.DB = fr.DB
			ropts.DialTimeout = fr.DialTimeout
			ropts.ReadTimeout = fr.ReadTimeout
			ropts.WriteTimeout = fr.WriteTimeout
			ropts.PoolSize = fr.PoolSize
			ropts.MinIdleConns = fr.MinIdleConns
		}
		c.redis = redis.NewClient(ropts)
		c.ownsRedis = true
	default:
		return nil, fmt.Errorf("a Redis connection is required (use WithRedis or WithRedisAddr)")
	}

	c.decomposer = workflow.NewDecomposer(workflow.Config{MaxSteps: cfg.MaxSteps})

	exact := cache.NewExactCache(c.redis, cache.ExactConfig{
		TTL:    cfg.ResponseTTL,
		Logger: observability.ComponentLogger(cfg.Logger, "cache.exact"),
	})

	var sem *semantic.Cache
	if !cfg.SemanticDisabled {
		emb := cfg.Embedder
		if emb == nil {
			emb = embedding.NewHashEmbedder(0)
		}
		store := cfg.VectorStore
		if store == nil {
			store = vector.NewMemoryStore()
		}
		var err error
		sem, err = semantic.New(emb, store, semantic.Config{
			SimilarityThreshold: cfg.SimilarityThreshold,
			DefaultTTL:          cfg.ResponseTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("semantic cache: %w", err)
		}
	}

	c.responseCache = cache.NewResponseCache(exact, sem, cache.ResponseCacheConfig{
		TTL:    cfg.ResponseTTL,
		Logger: observability.ComponentLogger(cfg.Logger, "cache.response"),
	})

	interStore := cfg.IntermediateStore
	if interStore == nil {
		interStore = intermediate.NewMemoryStore(cfg.IntermediateTTL)
	}
	c.intermediate = intermediate.New(interStore, intermediate.Config{
		DefaultTTL: cfg.IntermediateTTL,
		Logger:     observability.ComponentLogger(cfg.Logger, "cache.intermediate"),
	})

	c.limiter = ratelimit.New(c.redis, ratelimit.Config{
		Logger: observability.ComponentLogger(cfg.Logger, "ratelimit"),
		Now:    cfg.Clock,
	})
	c.meter = metering.New(c.redis, metering.Config{
		Logger:     observability.ComponentLogger(cfg.Logger, "metering"),
		Now:        cfg.Clock,
		DailyTTL:   cfg.meterDailyTTL,
		MonthlyTTL: cfg.meterMonthlyTTL,
	})
	c.pricing = pricing.NewCalculator(cfg.Pricing)

	return c, nil
}

// Complete runs one request through the full pipeline: admission,
// enrichment, decomposition, response-cache lookup, workflow execution
// on a miss, asynchronous cache writeback, and usage metering.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("a non-empty prompt is required")
	}

	tenant := req.Tenant
	if tenant.ID != "" {
		if err := c.admit(ctx, tenant); err != nil {
			return nil, err
		}
	}

	prompt := c.enrich(ctx, tenant.ID, req.Prompt)
	steps := c.decomposer.Decompose(prompt, workflow.Options{
		DocumentID: req.DocumentID,
		TaskType:   req.TaskType,
	})

	if hit, err := c.responseCache.Lookup(ctx, tenant.ID, prompt, req.Model); err == nil && hit != nil {
		return c.respondFromCache(ctx, tenant.ID, prompt, req.Model, hit), nil
	}

	var usage Usage
	executor := func(ctx context.Context, step workflow.Step) (string, error) {
		res, err := c.config.Infer(ctx, step)
		if err != nil {
			return "", err
		}
		if res.InputTokens == 0 && res.OutputTokens == 0 {
			res.InputTokens = tokenizer.Count(req.Model, step.InputText)
			res.OutputTokens = tokenizer.Count(req.Model, res.Text)
		}
		usage.InputTokens += res.InputTokens
		usage.OutputTokens += res.OutputTokens
		return res.Text, nil
	}

	resolved, err := c.intermediate.ExecuteWorkflow(ctx, steps, executor)
	if err != nil {
		return nil, fmt.Errorf("execute workflow: %w", err)
	}

	answer := assembleAnswer(resolved)
	cost := c.pricing.Cost(req.Model, usage.InputTokens, usage.OutputTokens)

	c.responseCache.StoreAsync(tenant.ID, prompt, answer, req.Model)
	c.meter.RecordUsage(ctx, metering.Record{
		TenantID:     tenant.ID,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
	})

	return &Response{
		Text:    answer,
		Model:   req.Model,
		Steps:   resolved,
		Usage:   usage,
		CostUSD: cost,
	}, nil
}

// admit runs the pre-inference gates in cheap-to-expensive order:
// monthly request cap, monthly budget, then the per-minute window.
func (c *Client) admit(ctx context.Context, tenant TenantContext) error {
	if tenant.MonthlyRequestLimit > 0 && c.meter.IsRateLimited(ctx, tenant.ID, tenant.MonthlyRequestLimit) {
		metrics.BudgetRejections.WithLabelValues("monthly_cap").Inc()
		return ErrMonthlyLimitExceeded
	}

	if tenant.MonthlyBudgetUSD > 0 && c.meter.IsBudgetExceeded(ctx, tenant.ID, tenant.MonthlyBudgetUSD) {
		metrics.BudgetRejections.WithLabelValues("budget").Inc()
		return ErrBudgetExceeded
	}

	rpm := tenant.RPMLimit
	if rpm == 0 {
		rpm = c.config.DefaultRPMLimit
	}
	if d := c.limiter.Admit(ctx, tenant.ID, rpm); !d.Allowed {
		return &RateLimitError{
			Limit:      d.Limit,
			RetryAfter: d.RetryAfter,
			ResetAt:    d.ResetAt,
		}
	}
	return nil
}

func (c *Client) enrich(ctx context.Context, tenantID, prompt string) string {
	if c.config.Enricher == nil {
		return prompt
	}
	enriched, err := c.config.Enricher(ctx, tenantID, prompt)
	if err != nil {
		c.logger.WarnContext(ctx, "prompt enrichment failed, using raw prompt",
			"tenant_id", tenantID, "error", err)
		return prompt
	}
	return enriched
}

// respondFromCache builds a response for a tier 1/2 hit and credits the
// avoided provider cost as savings.
func (c *Client) respondFromCache(ctx context.Context, tenantID, prompt, model string, hit *cache.Hit) *Response {
	savings := c.pricing.Savings(model,
		tokenizer.Count(model, prompt),
		tokenizer.Count(model, hit.Response))

	c.meter.RecordUsage(ctx, metering.Record{
		TenantID:   tenantID,
		CacheHit:   true,
		SavingsUSD: savings,
	})

	respModel := hit.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Text:       hit.Response,
		Model:      respModel,
		CacheTier:  int(hit.Tier),
		Similarity: hit.Similarity,
		SavingsUSD: savings,
	}
}

// assembleAnswer reduces resolved steps to the final answer. The
// comparison and document shapes end in a single synthesis step whose
// result is the answer; the multi-part shape has one independent answer
// step per part, so their results are joined in order.
func assembleAnswer(steps []workflow.Step) string {
	if len(steps) == 0 {
		return ""
	}

	var answers []string
	for _, step := range steps {
		if step.Type == workflow.StepAnswer && step.Result != "" {
			answers = append(answers, step.Result)
		}
	}
	if len(answers) > 1 {
		return strings.Join(answers, "\n\n")
	}
	return steps[len(steps)-1].Result
}

// InvalidateDocument drops every intermediate result derived from the
// given document. Returns the number of entries removed.
func (c *Client) InvalidateDocument(ctx context.Context, documentID string) int {
	return c.intermediate.InvalidateByDocument(ctx, documentID)
}

// DailyUsage returns the tenant's usage counters for the given day.
func (c *Client) DailyUsage(ctx context.Context, tenantID string, day time.Time) metering.Usage {
	return c.meter.GetDailyUsage(ctx, tenantID, day)
}

// MonthlyBudget returns the tenant's spend counters for the current month.
func (c *Client) MonthlyBudget(ctx context.Context, tenantID string) metering.Budget {
	return c.meter.GetMonthlyBudget(ctx, tenantID)
}

// Stats aggregates per-tier cache statistics.
type Stats struct {
	Exact        cache.Stats        `json:"exact"`
	Semantic     semantic.Stats     `json:"semantic"`
	Intermediate intermediate.Stats `json:"intermediate"`
}

// Stats returns a snapshot of cache effectiveness across all tiers.
func (c *Client) Stats(ctx context.Context) Stats {
	exact, sem := c.responseCache.Stats()
	return Stats{
		Exact:        exact,
		Semantic:     sem,
		Intermediate: c.intermediate.Stats(ctx),
	}
}

// Close drains in-flight cache writebacks and releases owned resources.
func (c *Client) Close() error {
	err := c.responseCache.Close()
	if c.ownsRedis {
		if cerr := c.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// applyFileConfig fills settings from a YAML file for knobs still at
// their defaults. Explicit options win over file values.
func applyFileConfig(cfg *ClientConfig) error {
	fileCfg, err := config.LoadFromFile(cfg.ConfigFile)
	if err != nil {
		return err
	}

	def := defaultClientConfig()

	if cfg.RedisAddr == "" && cfg.Redis == nil {
		cfg.RedisAddr = fileCfg.Redis.Addr
		cfg.fileRedis = &fileCfg.Redis
	}
	cfg.meterDailyTTL = fileCfg.Metering.DailyTTL
	cfg.meterMonthlyTTL = fileCfg.Metering.MonthlyTTL
	if cfg.SimilarityThreshold == def.SimilarityThreshold && fileCfg.Cache.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = fileCfg.Cache.SimilarityThreshold
	}
	if cfg.ResponseTTL == def.ResponseTTL && fileCfg.Cache.ResponseTTL > 0 {
		cfg.ResponseTTL = fileCfg.Cache.ResponseTTL
	}
	if cfg.IntermediateTTL == def.IntermediateTTL && fileCfg.Cache.IntermediateTTL > 0 {
		cfg.IntermediateTTL = fileCfg.Cache.IntermediateTTL
	}
	if cfg.MaxSteps == def.MaxSteps && fileCfg.Workflow.MaxSteps > 0 {
		cfg.MaxSteps = fileCfg.Workflow.MaxSteps
	}
	if cfg.DefaultRPMLimit == 0 && fileCfg.RateLimit.Enabled {
		cfg.DefaultRPMLimit = int64(fileCfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Logger == slog.Default() {
		cfg.Logger = observability.NewLogger(observability.LoggerConfig{
			Level:      observability.ParseLevel(fileCfg.Logging.Level),
			JSONFormat: fileCfg.Logging.Format != "text",
		})
	}
	return nil
}
