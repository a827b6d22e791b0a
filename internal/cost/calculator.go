// Package cost prices automated-reasoning calls and records them in the
// cost/telemetry log.
package cost

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// Calculator computes USD costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one Claude call. Unknown models price at zero.
func (c *Calculator) Claude(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(inputTokens) / 1e6) * rate.Input
	outCost := (float64(outputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
