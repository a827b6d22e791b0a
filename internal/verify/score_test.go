package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/communityroots/resource-cli/internal/model"
)

func allPass() map[string]model.CheckResult {
	checks := make(map[string]model.CheckResult, len(checkWeights))
	for name := range checkWeights {
		checks[name] = model.CheckResult{Pass: true}
	}
	return checks
}

func TestScore_AllPassIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, Score(allPass()), 0.0001)
}

func TestScore_AllFailIsZero(t *testing.T) {
	checks := allPass()
	for name := range checks {
		checks[name] = model.CheckResult{Pass: false}
	}
	assert.Zero(t, Score(checks))
}

func TestScore_SkippedChecksRenormalize(t *testing.T) {
	// Everything that ran passed; skipped checks must not drag the score.
	checks := allPass()
	checks[model.CheckURLReachable] = model.CheckResult{Skipped: true}
	checks[model.CheckContentConsistent] = model.CheckResult{Skipped: true}
	assert.InDelta(t, 1.0, Score(checks), 0.0001)
}

func TestScore_ConfidenceScalesPassingChecks(t *testing.T) {
	conf := 0.5
	checks := allPass()
	checks[model.CheckContentConsistent] = model.CheckResult{Pass: true, Confidence: &conf}

	// 0.20 weight at half confidence loses 0.10 of the total.
	assert.InDelta(t, 0.9, Score(checks), 0.0001)
}

func TestScore_Monotonic(t *testing.T) {
	// Flipping any single check fail -> pass never decreases the score.
	for flipped := range checkWeights {
		base := allPass()
		base[flipped] = model.CheckResult{Pass: false}
		lower := Score(base)

		base[flipped] = model.CheckResult{Pass: true}
		higher := Score(base)

		assert.GreaterOrEqual(t, higher, lower, "flipping %s to pass decreased the score", flipped)
	}
}

func TestScore_UnknownChecksIgnored(t *testing.T) {
	checks := allPass()
	checks["bogus_check"] = model.CheckResult{Pass: false}
	assert.InDelta(t, 1.0, Score(checks), 0.0001)
}

func TestScore_EmptyIsZero(t *testing.T) {
	assert.Zero(t, Score(nil))
}
