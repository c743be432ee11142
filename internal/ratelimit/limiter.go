// Package ratelimit implements a per-tenant sliding-window rate limiter
// backed by Redis sorted sets.
//
// The window check is a single Lua script, so concurrent gateways
// sharing one Redis see a consistent count and the check-then-record
// step cannot race. If Redis is unreachable the limiter fails open:
// availability is preferred over strict enforcement, and the error is
// logged and counted so the degradation is visible.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/costgate/internal/metrics"
)

// windowSize is the sliding-window length. Keys expire one second after
// the window so idle tenants clean themselves up.
const windowSize = time.Minute

// slidingWindowScript prunes expired admissions, counts the remainder,
// and records the new admission only when the tenant is under its
// limit. A denied attempt is not recorded, so being over the limit
// does not push the reset time further out. The prune bound is
// exclusive: an admission aged exactly one window still counts.
//
// KEYS[1] = tenant window key (sorted set, score = admission time in ms)
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = limit, ARGV[4] = member
//
// Returns {allowed (0/1), count before this attempt}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, '(' .. (now - window))

local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, count}
end

redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, 61)
return {1, count}
`)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the per-minute limit that was applied.
	Limit int64

	// Remaining is how many admissions the tenant has left in the
	// current window after this one.
	Remaining int64

	// ResetAt is when a denied caller can expect a fresh window.
	ResetAt time.Time

	// RetryAfter is the suggested wait before retrying a denied request.
	RetryAfter time.Duration
}

// Limiter is a Redis-backed sliding-window rate limiter. A nil Redis
// client or a backend error fails open: the request is allowed, the
// degradation is logged and counted.
type Limiter struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// Config holds configuration for Limiter.
type Config struct {
	// Prefix namespaces limiter keys (default: "rate").
	Prefix string

	// Logger receives fail-open warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// New creates a Limiter over the given Redis client. The client may be
// nil, in which case every check fails open.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rate"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		client: client,
		prefix: cfg.Prefix,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Key returns the Redis key for a tenant's admission window.
func (l *Limiter) Key(tenantID string) string {
	return fmt.Sprintf("%s:%s:minute", l.prefix, tenantID)
}

// Admit checks whether a request from the tenant may proceed under the
// given per-minute limit. A non-positive limit disables limiting for
// the tenant.
func (l *Limiter) Admit(ctx context.Context, tenantID string, limitPerMinute int64) Decision {
	now := l.now()

	if limitPerMinute <= 0 {
		return Decision{Allowed: true, Limit: limitPerMinute, ResetAt: now.Add(windowSize)}
	}

	if l.client == nil {
		metrics.RateLimiterBackendErrors.WithLabelValues("fail_open").Inc()
		return l.failOpen(limitPerMinute, now)
	}

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.Key(tenantID)},
		now.UnixMilli(),
		windowSize.Milliseconds(),
		limitPerMinute,
		uuid.NewString(),
	).Result()
	if err != nil {
		metrics.RateLimiterBackendErrors.WithLabelValues("fail_open").Inc()
		l.logger.WarnContext(ctx, "rate limiter backend unavailable, failing open",
			"tenant_id", tenantID, "error", err)
		return l.failOpen(limitPerMinute, now)
	}

	allowed, count, err := parseScriptResult(res)
	if err != nil {
		metrics.RateLimiterBackendErrors.WithLabelValues("fail_open").Inc()
		l.logger.WarnContext(ctx, "rate limiter script returned unexpected result, failing open",
			"tenant_id", tenantID, "error", err)
		return l.failOpen(limitPerMinute, now)
	}

	return l.decide(allowed, count, limitPerMinute, now)
}

func (l *Limiter) decide(allowed bool, count, limit int64, now time.Time) Decision {
	d := Decision{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: now.Add(windowSize),
	}

	if allowed {
		metrics.RateLimitDecisions.WithLabelValues("allow").Inc()
		d.Remaining = limit - count - 1
		if d.Remaining < 0 {
			d.Remaining = 0
		}
		return d
	}

	metrics.RateLimitDecisions.WithLabelValues("deny").Inc()
	d.Remaining = 0
	d.RetryAfter = windowSize
	return d
}

// failOpen admits a request the window could not be consulted for.
// Availability wins over strict enforcement when the store is gone.
func (l *Limiter) failOpen(limit int64, now time.Time) Decision {
	metrics.RateLimitDecisions.WithLabelValues("allow").Inc()
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - 1,
		ResetAt:   now.Add(windowSize),
	}
}

// Count returns the tenant's current admission count without recording
// anything. Used for introspection endpoints.
func (l *Limiter) Count(ctx context.Context, tenantID string) (int64, error) {
	if l.client == nil {
		return 0, nil
	}

	now := l.now()
	windowStart := now.Add(-windowSize).UnixMilli()

	if err := l.client.ZRemRangeByScore(ctx, l.Key(tenantID), "0", "("+strconv.FormatInt(windowStart, 10)).Err(); err != nil {
		return 0, err
	}
	return l.client.ZCard(ctx, l.Key(tenantID)).Result()
}

// Reset clears the tenant's window. Intended for tests and admin tooling.
func (l *Limiter) Reset(ctx context.Context, tenantID string) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.Key(tenantID)).Err()
}

func parseScriptResult(res interface{}) (allowed bool, count int64, err error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected script result: %T", res)
	}

	toInt := func(v interface{}) (int64, error) {
		switch n := v.(type) {
		case int64:
			return n, nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		default:
			return 0, fmt.Errorf("unexpected element type: %T", v)
		}
	}

	flag, err := toInt(vals[0])
	if err != nil {
		return false, 0, err
	}
	count, err = toInt(vals[1])
	if err != nil {
		return false, 0, err
	}
	return flag == 1, count, nil
}
