// Package metrics provides Prometheus metrics for the cost-control core.
// It tracks cache tier outcomes, rate-limiter decisions, metering writes
// and the spend/savings accounting that feeds billing dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "costgate"
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheLookups counts cache lookups by tier and outcome (hit/miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	// CacheWriteFailures counts failed best-effort cache writes.
	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Total failed best-effort cache writes by tier",
		},
		[]string{"tier"},
	)

	// SemanticSimilarity observes the similarity score of semantic cache candidates.
	SemanticSimilarity = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "semantic_similarity_score",
			Help:      "Similarity score of top semantic cache candidates",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 0.99, 1.0},
		},
	)
)

// =============================================================================
// Admission Metrics
// =============================================================================

var (
	// RateLimitDecisions counts sliding-window limiter decisions.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Sliding-window rate limiter decisions (allow/deny)",
		},
		[]string{"decision"},
	)

	// RateLimiterBackendErrors counts limiter store failures and the action taken.
	RateLimiterBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_backend_errors_total",
			Help:      "Rate limiter backend errors and the resulting action",
		},
		[]string{"action"},
	)

	// BudgetRejections counts requests rejected for budget or monthly-cap reasons.
	BudgetRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_rejections_total",
			Help:      "Requests rejected before inference by budget checks",
		},
		[]string{"reason"},
	)
)

// =============================================================================
// Metering Metrics
// =============================================================================

var (
	// UsageRecords counts usage-metering writes by result.
	UsageRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage metering writes by result (ok/error)",
		},
		[]string{"result"},
	)

	// TokensRecorded counts metered tokens by direction (input/output).
	TokensRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_recorded_total",
			Help:      "Total metered tokens by direction",
		},
		[]string{"direction"},
	)

	// SpendRecordedUSD accumulates metered spend in USD.
	SpendRecordedUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_recorded_usd_total",
			Help:      "Total metered spend in USD",
		},
	)

	// SavingsRecordedUSD accumulates estimated cache savings in USD.
	SavingsRecordedUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "savings_recorded_usd_total",
			Help:      "Total estimated savings from cache hits in USD",
		},
	)
)
