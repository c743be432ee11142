package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_ExactMatch(t *testing.T) {
	c := NewCalculator(nil)

	// 1000 input + 500 output on gpt-4o: 1000/1M*5 + 500/1M*15.
	cost := c.Cost("gpt-4o", 1000, 500)
	assert.InDelta(t, 0.0125, cost, 1e-9)
}

func TestCalculator_WildcardPrefersLongestPrefix(t *testing.T) {
	c := NewCalculator(nil)

	turbo, ok := c.Lookup("gpt-4-turbo-2024-04-09")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4-turbo*", turbo.Pattern)

	base, ok := c.Lookup("gpt-4-0613")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4*", base.Pattern)
}

func TestCalculator_ExactBeatsWildcard(t *testing.T) {
	c := NewCalculator([]ModelPricing{
		{Pattern: "m*", InputPerMTok: 100, OutputPerMTok: 100},
		{Pattern: "my-model", InputPerMTok: 1, OutputPerMTok: 1},
	})

	p, ok := c.Lookup("my-model")
	assert.True(t, ok)
	assert.Equal(t, "my-model", p.Pattern)
}

func TestCalculator_CaseInsensitive(t *testing.T) {
	c := NewCalculator(nil)

	assert.Equal(t, c.Cost("GPT-4o", 100, 100), c.Cost("gpt-4o", 100, 100))
}

func TestCalculator_UnknownModelIsFree(t *testing.T) {
	c := NewCalculator(nil)

	assert.Zero(t, c.Cost("totally-unknown-model", 100000, 100000))
	_, ok := c.Lookup("totally-unknown-model")
	assert.False(t, ok)
}

func TestCalculator_SavingsEqualsAvoidedCost(t *testing.T) {
	c := NewCalculator(nil)

	assert.Equal(t, c.Cost("claude-3-haiku-20240307", 2000, 1000),
		c.Savings("claude-3-haiku-20240307", 2000, 1000))
}

func TestCalculator_ZeroTokens(t *testing.T) {
	c := NewCalculator(nil)
	assert.Zero(t, c.Cost("gpt-4o", 0, 0))
}
