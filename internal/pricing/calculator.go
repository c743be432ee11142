// Package pricing converts token counts into dollar amounts. The same
// table drives both real spend (what a request cost) and savings (what
// a cache hit avoided paying), so the two stay comparable.
package pricing

import "strings"

// ModelPricing defines per-token pricing for a model. A trailing "*" in
// Pattern matches any model name with that prefix.
type ModelPricing struct {
	Pattern       string
	InputPerMTok  float64 // USD per 1M input tokens
	OutputPerMTok float64 // USD per 1M output tokens
}

// DefaultPricing lists published list prices for common models, in USD
// per million tokens.
var DefaultPricing = []ModelPricing{
	{Pattern: "gpt-4o-mini", InputPerMTok: 0.15, OutputPerMTok: 0.60},
	{Pattern: "gpt-4o", InputPerMTok: 5.00, OutputPerMTok: 15.00},
	{Pattern: "gpt-4-turbo*", InputPerMTok: 10.00, OutputPerMTok: 30.00},
	{Pattern: "gpt-4*", InputPerMTok: 30.00, OutputPerMTok: 60.00},
	{Pattern: "gpt-3.5-turbo", InputPerMTok: 0.50, OutputPerMTok: 1.50},

	{Pattern: "claude-3-5-sonnet*", InputPerMTok: 3.00, OutputPerMTok: 15.00},
	{Pattern: "claude-3-opus*", InputPerMTok: 15.00, OutputPerMTok: 75.00},
	{Pattern: "claude-3-haiku*", InputPerMTok: 0.25, OutputPerMTok: 1.25},
	{Pattern: "claude-3*", InputPerMTok: 3.00, OutputPerMTok: 15.00},

	{Pattern: "gemini-1.5-pro*", InputPerMTok: 1.25, OutputPerMTok: 5.00},
	{Pattern: "gemini-1.5-flash*", InputPerMTok: 0.075, OutputPerMTok: 0.30},

	{Pattern: "deepseek-chat", InputPerMTok: 0.14, OutputPerMTok: 0.28},

	{Pattern: "llama-3*", InputPerMTok: 0.20, OutputPerMTok: 0.20},

	{Pattern: "mistral-large*", InputPerMTok: 4.00, OutputPerMTok: 12.00},
	{Pattern: "mistral-small*", InputPerMTok: 1.00, OutputPerMTok: 3.00},
	{Pattern: "mixtral-8x7b*", InputPerMTok: 0.70, OutputPerMTok: 0.70},
}

// Calculator resolves model names against a pricing table.
type Calculator struct {
	table []ModelPricing
}

// NewCalculator builds a calculator from the given table. A nil table
// uses DefaultPricing.
func NewCalculator(table []ModelPricing) *Calculator {
	if table == nil {
		table = DefaultPricing
	}
	return &Calculator{table: table}
}

// Cost returns the USD cost for the given model and token counts.
// Unknown models cost zero; metering an unknown model as free is
// preferred over guessing a price.
func (c *Calculator) Cost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := c.lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
}

// Savings returns what a cache hit avoided spending: the cost the
// request would have incurred had it gone to the provider.
func (c *Calculator) Savings(model string, inputTokens, outputTokens int64) float64 {
	return c.Cost(model, inputTokens, outputTokens)
}

// Lookup resolves the pricing entry for a model, supporting wildcard
// patterns. Exact matches win; among wildcards, the longest matching
// prefix wins.
func (c *Calculator) Lookup(model string) (ModelPricing, bool) {
	return c.lookup(model)
}

func (c *Calculator) lookup(model string) (ModelPricing, bool) {
	modelLower := strings.ToLower(model)

	for _, p := range c.table {
		if !strings.HasSuffix(p.Pattern, "*") && strings.EqualFold(p.Pattern, model) {
			return p, true
		}
	}

	var best ModelPricing
	bestLen := -1
	for _, p := range c.table {
		if !strings.HasSuffix(p.Pattern, "*") {
			continue
		}
		prefix := strings.ToLower(strings.TrimSuffix(p.Pattern, "*"))
		if strings.HasPrefix(modelLower, prefix) && len(prefix) > bestLen {
			best = p
			bestLen = len(prefix)
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	return ModelPricing{}, false
}
