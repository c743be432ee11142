package metering

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeter(t *testing.T) (*Meter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Config{}), s
}

func TestMeter_RecordAndReadDaily(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	m.RecordUsage(ctx, Record{
		TenantID:     "tenant-a",
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      0.012,
	})
	m.RecordUsage(ctx, Record{
		TenantID:     "tenant-a",
		InputTokens:  30,
		OutputTokens: 20,
		CacheHit:     true,
		SavingsUSD:   0.008,
	})

	u := m.GetDailyUsage(ctx, "tenant-a", m.now())
	assert.Equal(t, int64(2), u.Requests)
	assert.Equal(t, int64(130), u.InputTokens)
	assert.Equal(t, int64(70), u.OutputTokens)
	assert.Equal(t, int64(1), u.CacheHits)
	assert.InDelta(t, 0.012, u.CostUSD, 1e-9)
	assert.InDelta(t, 0.008, u.SavingsUSD, 1e-9)
}

func TestMeter_MonthlyBudgetAccumulates(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	for i := 0; i < 3; i++ {
		m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 1.5})
	}

	b := m.GetMonthlyBudget(ctx, "tenant-a")
	assert.Equal(t, int64(3), b.RequestCount)
	assert.InDelta(t, 4.5, b.SpentUSD, 1e-9)
}

func TestMeter_AbsentKeysReadZero(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	u := m.GetDailyUsage(ctx, "never-seen", m.now())
	assert.Equal(t, Usage{}, u)

	b := m.GetMonthlyBudget(ctx, "never-seen")
	assert.Equal(t, Budget{}, b)
}

func TestMeter_TTLsAreSet(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMeter(t)

	m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 1})

	now := m.now()
	assert.Equal(t, DailyTTL, s.TTL(DailyKey("tenant-a", now)))
	assert.Equal(t, MonthlyTTL, s.TTL(MonthlyKey("tenant-a", now)))
}

func TestMeter_IsBudgetExceeded(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 9.99})

	assert.False(t, m.IsBudgetExceeded(ctx, "tenant-a", 10.00),
		"9.99 spent against a 10.00 budget is still under")

	m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 0.01})

	assert.True(t, m.IsBudgetExceeded(ctx, "tenant-a", 10.00),
		"spend equal to the budget is exceeded")

	assert.False(t, m.IsBudgetExceeded(ctx, "tenant-a", 0),
		"zero budget means unlimited")
	assert.False(t, m.IsBudgetExceeded(ctx, "tenant-a", -5))
}

func TestMeter_IsRateLimited(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	for i := 0; i < 5; i++ {
		m.RecordUsage(ctx, Record{TenantID: "tenant-a"})
	}

	assert.False(t, m.IsRateLimited(ctx, "tenant-a", 6))
	assert.True(t, m.IsRateLimited(ctx, "tenant-a", 5),
		"count equal to the cap is limited")
	assert.False(t, m.IsRateLimited(ctx, "tenant-a", -1),
		"negative cap means unlimited")
}

func TestMeter_BackendDownFailsOpen(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMeter(t)

	m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 100})
	s.Close()

	// Writes are swallowed, reads return zeroes, checks pass.
	m.RecordUsage(ctx, Record{TenantID: "tenant-a", CostUSD: 100})

	assert.Equal(t, Usage{}, m.GetDailyUsage(ctx, "tenant-a", m.now()))
	assert.Equal(t, Budget{}, m.GetMonthlyBudget(ctx, "tenant-a"))
	assert.False(t, m.IsBudgetExceeded(ctx, "tenant-a", 1))
	assert.False(t, m.IsRateLimited(ctx, "tenant-a", 1))
}

func TestMeter_DaysAreSeparateKeys(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMeter(t)

	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	m.RecordUsage(ctx, Record{TenantID: "tenant-a", InputTokens: 10})

	m.now = func() time.Time { return base.AddDate(0, 0, 1) }
	m.RecordUsage(ctx, Record{TenantID: "tenant-a", InputTokens: 20})

	day1 := m.GetDailyUsage(ctx, "tenant-a", base)
	day2 := m.GetDailyUsage(ctx, "tenant-a", base.AddDate(0, 0, 1))
	assert.Equal(t, int64(10), day1.InputTokens)
	assert.Equal(t, int64(20), day2.InputTokens)

	// Both days land in the same monthly budget.
	b := m.GetMonthlyBudget(ctx, "tenant-a")
	require.Equal(t, int64(2), b.RequestCount)
}
