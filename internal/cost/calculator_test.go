package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{"haiku basic", "haiku", 1_000_000, 500_000, 0.80 + 2.00},
		{"sonnet basic", "sonnet", 2_000_000, 100_000, 6.00 + 1.50},
		{"zero tokens", "haiku", 0, 0, 0},
		{"unknown model", "opus", 1_000_000, 1_000_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Claude(tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.NotEmpty(t, rates.Anthropic)
	for name, r := range rates.Anthropic {
		assert.Greater(t, r.Input, 0.0, name)
		assert.Greater(t, r.Output, 0.0, name)
	}
}
