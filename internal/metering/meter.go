// Package metering tracks per-tenant usage and spend in Redis hashes.
//
// Counters are split by horizon: a daily usage hash for reporting and a
// monthly budget hash for admission checks. All writes go through a
// single pipelined round trip of hash increments, so concurrent
// gateways never lose updates to read-modify-write races. Every touch
// refreshes the key TTL, which lets old periods age out without a
// cleanup job.
//
// Metering is strictly best-effort on the write side and fail-open on
// the read side: a dead Redis yields zeroed snapshots and admission
// checks that pass. Billing accuracy degrades before availability does.
package metering

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/costgate/internal/metrics"
)

const (
	// DailyTTL keeps daily usage hashes for just over a month.
	DailyTTL = 32 * 24 * time.Hour

	// MonthlyTTL keeps monthly budget hashes past the billing cycle.
	MonthlyTTL = 35 * 24 * time.Hour
)

// Hash field names shared by the daily and monthly counters.
const (
	fieldRequests     = "requests"
	fieldInputTokens  = "input_tokens"
	fieldOutputTokens = "output_tokens"
	fieldCacheHits    = "cache_hits"
	fieldCostUSD      = "cost_usd"
	fieldSavingsUSD   = "savings_usd"
)

// Usage is a snapshot of a tenant's daily counters.
type Usage struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CacheHits    int64   `json:"cache_hits"`
	CostUSD      float64 `json:"cost_usd"`
	SavingsUSD   float64 `json:"savings_usd"`
}

// Budget is a snapshot of a tenant's monthly counters.
type Budget struct {
	RequestCount int64   `json:"request_count"`
	SpentUSD     float64 `json:"spent_usd"`
}

// Record describes one completed request for metering.
type Record struct {
	TenantID     string
	InputTokens  int64
	OutputTokens int64
	CacheHit     bool
	CostUSD      float64
	SavingsUSD   float64
}

// Meter records and reads per-tenant usage counters.
type Meter struct {
	client redis.UniversalClient
	logger *slog.Logger

	dailyTTL   time.Duration
	monthlyTTL time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// Config holds configuration for Meter.
type Config struct {
	// Logger receives best-effort failure warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time

	// DailyTTL and MonthlyTTL override counter retention. Zero keeps
	// the defaults.
	DailyTTL   time.Duration
	MonthlyTTL time.Duration
}

// New creates a Meter over the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Meter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DailyTTL <= 0 {
		cfg.DailyTTL = DailyTTL
	}
	if cfg.MonthlyTTL <= 0 {
		cfg.MonthlyTTL = MonthlyTTL
	}

	return &Meter{
		client:     client,
		logger:     cfg.Logger,
		dailyTTL:   cfg.DailyTTL,
		monthlyTTL: cfg.MonthlyTTL,
		now:        cfg.Now,
	}
}

// DailyKey returns the usage key for a tenant on a given day.
func DailyKey(tenantID string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", tenantID, day.UTC().Format("2006-01-02"))
}

// MonthlyKey returns the budget key for a tenant in a given month.
func MonthlyKey(tenantID string, month time.Time) string {
	return fmt.Sprintf("budget:%s:%s", tenantID, month.UTC().Format("2006-01"))
}

// RecordUsage increments the tenant's daily and monthly counters in one
// pipelined round trip and refreshes both TTLs. Failures are logged and
// swallowed; metering never blocks the request path.
func (m *Meter) RecordUsage(ctx context.Context, rec Record) {
	if m.client == nil || rec.TenantID == "" {
		return
	}

	now := m.now()
	dailyKey := DailyKey(rec.TenantID, now)
	monthlyKey := MonthlyKey(rec.TenantID, now)

	pipe := m.client.TxPipeline()

	pipe.HIncrBy(ctx, dailyKey, fieldRequests, 1)
	pipe.HIncrBy(ctx, dailyKey, fieldInputTokens, rec.InputTokens)
	pipe.HIncrBy(ctx, dailyKey, fieldOutputTokens, rec.OutputTokens)
	if rec.CacheHit {
		pipe.HIncrBy(ctx, dailyKey, fieldCacheHits, 1)
	}
	pipe.HIncrByFloat(ctx, dailyKey, fieldCostUSD, rec.CostUSD)
	pipe.HIncrByFloat(ctx, dailyKey, fieldSavingsUSD, rec.SavingsUSD)
	pipe.Expire(ctx, dailyKey, m.dailyTTL)

	pipe.HIncrBy(ctx, monthlyKey, fieldRequests, 1)
	pipe.HIncrByFloat(ctx, monthlyKey, fieldCostUSD, rec.CostUSD)
	pipe.Expire(ctx, monthlyKey, m.monthlyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.UsageRecords.WithLabelValues("error").Inc()
		m.logger.WarnContext(ctx, "usage record failed",
			"tenant_id", rec.TenantID, "error", err)
		return
	}

	metrics.UsageRecords.WithLabelValues("ok").Inc()
	metrics.TokensRecorded.WithLabelValues("input").Add(float64(rec.InputTokens))
	metrics.TokensRecorded.WithLabelValues("output").Add(float64(rec.OutputTokens))
	metrics.SpendRecordedUSD.Add(rec.CostUSD)
	metrics.SavingsRecordedUSD.Add(rec.SavingsUSD)
}

// GetDailyUsage returns the tenant's counters for the given day. Absent
// keys and backend failures both read as zero.
func (m *Meter) GetDailyUsage(ctx context.Context, tenantID string, day time.Time) Usage {
	var u Usage
	if m.client == nil {
		return u
	}

	fields, err := m.client.HGetAll(ctx, DailyKey(tenantID, day)).Result()
	if err != nil {
		m.logger.WarnContext(ctx, "daily usage read failed, returning zeroes",
			"tenant_id", tenantID, "error", err)
		return u
	}

	u.Requests = parseInt(fields[fieldRequests])
	u.InputTokens = parseInt(fields[fieldInputTokens])
	u.OutputTokens = parseInt(fields[fieldOutputTokens])
	u.CacheHits = parseInt(fields[fieldCacheHits])
	u.CostUSD = parseFloat(fields[fieldCostUSD])
	u.SavingsUSD = parseFloat(fields[fieldSavingsUSD])
	return u
}

// GetMonthlyBudget returns the tenant's spend counters for the current
// month. Absent keys and backend failures both read as zero.
func (m *Meter) GetMonthlyBudget(ctx context.Context, tenantID string) Budget {
	var b Budget
	if m.client == nil {
		return b
	}

	fields, err := m.client.HGetAll(ctx, MonthlyKey(tenantID, m.now())).Result()
	if err != nil {
		m.logger.WarnContext(ctx, "monthly budget read failed, returning zeroes",
			"tenant_id", tenantID, "error", err)
		return b
	}

	b.RequestCount = parseInt(fields[fieldRequests])
	b.SpentUSD = parseFloat(fields[fieldCostUSD])
	return b
}

// IsBudgetExceeded reports whether the tenant has spent its monthly
// budget. A non-positive budget means unlimited. Reads fail open.
func (m *Meter) IsBudgetExceeded(ctx context.Context, tenantID string, budgetUSD float64) bool {
	if budgetUSD <= 0 {
		return false
	}
	return m.GetMonthlyBudget(ctx, tenantID).SpentUSD >= budgetUSD
}

// IsRateLimited reports whether the tenant has used its monthly request
// cap. A negative limit means unlimited. Reads fail open. This is the
// long-horizon cap; the per-minute window lives in the ratelimit package.
func (m *Meter) IsRateLimited(ctx context.Context, tenantID string, monthlyLimit int64) bool {
	if monthlyLimit < 0 {
		return false
	}
	return m.GetMonthlyBudget(ctx, tenantID).RequestCount >= monthlyLimit
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
