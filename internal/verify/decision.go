package verify

import (
	"fmt"
	"strings"

	"github.com/communityroots/resource-cli/internal/model"
)

// Decision thresholds. Scores below rejectBelow are auto-rejected, scores
// below flagBelow are flagged, and approveAt is the floor for auto-approval.
const (
	rejectBelow = 0.5
	flagBelow   = 0.7
	approveAt   = 0.85

	// materialConflict is the conflict confidence above which a
	// disagreement forces human review.
	materialConflict = 0.7

	// minCrossRefSources is how many independent sources must match
	// before a candidate can be auto-approved.
	minCrossRefSources = 2
)

// Decide applies the decision policy in order; the first matching rule wins.
func Decide(score float64, cand *model.NormalizedResource, checks map[string]model.CheckResult, conflicts []model.FieldConflict, crossRefMatches int) (model.Decision, string) {
	// A website that stayed unreachable after the repair attempt is
	// disqualifying no matter how well everything else scored.
	if cand.Website != "" {
		if c, ok := checks[model.CheckURLReachable]; ok && !c.Skipped && !c.Pass {
			return model.DecisionAutoReject, "website unreachable"
		}
	}

	if score < rejectBelow {
		return model.DecisionAutoReject, fmt.Sprintf("score %.2f below rejection threshold %.2f", score, rejectBelow)
	}

	if fields := materialConflictFields(conflicts); len(fields) > 0 {
		return model.DecisionFlagForHuman, "conflicting fields: " + strings.Join(fields, ", ")
	}

	if missing := failedCriticalChecks(checks); len(missing) > 0 {
		return model.DecisionFlagForHuman, "critical field checks not passed: " + strings.Join(missing, ", ")
	}

	if score < flagBelow {
		return model.DecisionFlagForHuman, fmt.Sprintf("score %.2f below approval threshold %.2f", score, flagBelow)
	}

	if score >= approveAt && crossRefMatches < minCrossRefSources {
		return model.DecisionFlagForHuman, "insufficient cross-reference"
	}

	if score >= approveAt && crossRefMatches >= minCrossRefSources && len(conflicts) == 0 {
		return model.DecisionAutoApprove, fmt.Sprintf("score %.2f with %d cross-reference matches and no conflicts", score, crossRefMatches)
	}

	return model.DecisionFlagForHuman, fmt.Sprintf("score %.2f requires review", score)
}

func materialConflictFields(conflicts []model.FieldConflict) []string {
	var fields []string
	for _, c := range conflicts {
		if c.Confidence > materialConflict {
			fields = append(fields, c.Field)
		}
	}
	return fields
}

// failedCriticalChecks reports phone and address checks that are missing,
// skipped, or failed. Both are critical fields for a service listing.
func failedCriticalChecks(checks map[string]model.CheckResult) []string {
	var out []string
	for _, name := range []string{model.CheckPhoneValid, model.CheckAddressGeocoded} {
		c, ok := checks[name]
		if !ok || c.Skipped || !c.Pass {
			out = append(out, name)
		}
	}
	return out
}
