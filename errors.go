package costgate

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for caller-visible rejections. Everything else the
// cost-control layers can get wrong (cache, metering, limiter backends)
// degrades silently; only these reach the caller, matched with errors.Is.
var (
	// ErrRateLimited is returned when the tenant exceeds its per-minute
	// request limit.
	ErrRateLimited = errors.New("costgate: rate limited")

	// ErrBudgetExceeded is returned when the tenant's monthly spend has
	// reached its budget.
	ErrBudgetExceeded = errors.New("costgate: monthly budget exceeded")

	// ErrMonthlyLimitExceeded is returned when the tenant's monthly
	// request cap has been reached.
	ErrMonthlyLimitExceeded = errors.New("costgate: monthly request limit exceeded")
)

// RateLimitError carries the retry hint for a per-minute denial. It
// matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	// Limit is the per-minute limit that was applied.
	Limit int64

	// RetryAfter is the suggested wait before retrying.
	RetryAfter time.Duration

	// ResetAt is when the current window ends.
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("costgate: rate limited (limit %d/min, retry after %s)", e.Limit, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
