package verify

import "github.com/communityroots/resource-cli/internal/model"

// checkWeights is the fixed weighting that combines check outcomes into the
// overall score. Skipped checks are excluded and the remaining weights are
// renormalized, so a record with no website is not penalized for the checks
// that could not run. A passing check that reports a confidence contributes
// weight * confidence; this keeps the score monotonic in every check
// (a failed check always contributes zero).
var checkWeights = map[string]float64{
	model.CheckURLReachable:      0.20,
	model.CheckPhoneValid:        0.15,
	model.CheckAddressGeocoded:   0.20,
	model.CheckContentConsistent: 0.20,
	model.CheckCrossReferenced:   0.15,
	model.CheckConflictDetection: 0.10,
}

// Score combines all tier results into a single score in [0,1].
func Score(checks map[string]model.CheckResult) float64 {
	var total, earned float64
	for name, c := range checks {
		w, known := checkWeights[name]
		if !known || c.Skipped {
			continue
		}
		total += w
		if !c.Pass {
			continue
		}
		v := 1.0
		if c.Confidence != nil {
			v = *c.Confidence
		}
		earned += w * v
	}
	if total == 0 {
		return 0
	}
	return earned / total
}
