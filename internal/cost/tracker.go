package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Tracker accumulates cost and call counts for one verification run. It is
// injected into the agent rather than inherited, so each run gets its own
// isolated totals.
type Tracker struct {
	mu       sync.Mutex
	costUSD  float64
	calls    int
	priced   int
	calc     *Calculator
	recorder func(provider, model, operation string, inputTokens, outputTokens int64, costUSD float64)
}

// NewTracker creates a Tracker backed by the given calculator. The optional
// recorder receives every priced call for the cost log; nil disables
// recording.
func NewTracker(calc *Calculator, recorder func(provider, model, operation string, inputTokens, outputTokens int64, costUSD float64)) *Tracker {
	return &Tracker{calc: calc, recorder: recorder}
}

// RecordCall notes one external network call with no token cost.
func (t *Tracker) RecordCall() {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
}

// RecordClaude prices one Claude call, accumulates it, and forwards it to the
// recorder.
func (t *Tracker) RecordClaude(model, operation string, inputTokens, outputTokens int64) float64 {
	costUSD := t.calc.Claude(model, inputTokens, outputTokens)

	t.mu.Lock()
	t.calls++
	t.priced++
	t.costUSD += costUSD
	recorder := t.recorder
	t.mu.Unlock()

	if recorder != nil {
		recorder("anthropic", model, operation, inputTokens, outputTokens, costUSD)
	}

	zap.L().Debug("cost attribution",
		zap.String("model", model),
		zap.String("operation", operation),
		zap.Int64("input_tokens", inputTokens),
		zap.Int64("output_tokens", outputTokens),
		zap.Float64("cost_usd", costUSD),
	)
	return costUSD
}

// TotalUSD returns the accumulated cost.
func (t *Tracker) TotalUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.costUSD
}

// Calls returns the number of external calls recorded.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
