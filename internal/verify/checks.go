package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/cost"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/pkg/geocode"
	"github.com/communityroots/resource-cli/pkg/judge"
	"github.com/communityroots/resource-cli/pkg/probe"
)

// checkURL probes the candidate's website. On a failed probe it asks the
// judge for one repaired URL and re-probes once; a working repair replaces
// the candidate's website. Returns the fetch-ready page URL metadata for
// tier 2 (nil when the check did not pass).
func (a *Agent) checkURL(ctx context.Context, cand *model.NormalizedResource, checks map[string]model.CheckResult, tracker *cost.Tracker) *probe.Page {
	if cand.Website == "" {
		checks[model.CheckURLReachable] = model.CheckResult{Skipped: true, Evidence: "no website on record"}
		return nil
	}

	tracker.RecordCall()
	ok, status, err := a.probe.Reachable(ctx, cand.Website)
	if ok {
		checks[model.CheckURLReachable] = model.CheckResult{Pass: true, Evidence: fmt.Sprintf("HTTP %d", status)}
		return &probe.Page{URL: cand.Website, StatusCode: status}
	}

	failure := fmt.Sprintf("HTTP %d", status)
	if err != nil {
		failure = err.Error()
	}

	// One automated repair attempt.
	repair, repairErr := a.judge.RepairURL(ctx, judge.RepairRequest{
		Name:      cand.Name,
		City:      cand.City,
		State:     cand.State,
		BrokenURL: cand.Website,
	})
	if repairErr == nil {
		// Tokens were consumed even when no repair came back.
		tracker.RecordClaude(a.judgeModel, "url_repair", repair.InputTokens, repair.OutputTokens)
	}
	if repairErr != nil || repair.SuggestedURL == "" {
		checks[model.CheckURLReachable] = model.CheckResult{
			Pass:     false,
			Evidence: fmt.Sprintf("unreachable (%s), no repair available", failure),
		}
		return nil
	}

	tracker.RecordCall()
	ok, status, _ = a.probe.Reachable(ctx, repair.SuggestedURL)
	if !ok {
		checks[model.CheckURLReachable] = model.CheckResult{
			Pass:     false,
			Evidence: fmt.Sprintf("unreachable (%s), repaired URL %s also unreachable", failure, repair.SuggestedURL),
		}
		return nil
	}

	zap.L().Debug("repaired website url",
		zap.String("candidate", cand.Name),
		zap.String("old", cand.Website),
		zap.String("new", repair.SuggestedURL),
	)
	cand.Website = repair.SuggestedURL
	checks[model.CheckURLReachable] = model.CheckResult{
		Pass:     true,
		Evidence: fmt.Sprintf("HTTP %d after URL repair (%s)", status, repair.Reason),
	}
	return &probe.Page{URL: repair.SuggestedURL, StatusCode: status}
}

// checkPhone validates the candidate's phone number against the US
// number grammar.
func checkPhone(cand *model.NormalizedResource, checks map[string]model.CheckResult) {
	if cand.Phone == "" {
		checks[model.CheckPhoneValid] = model.CheckResult{Skipped: true, Evidence: "no phone on record"}
		return
	}

	num, err := phonenumbers.Parse(cand.Phone, "US")
	if err != nil {
		checks[model.CheckPhoneValid] = model.CheckResult{Pass: false, Evidence: "unparseable: " + err.Error()}
		return
	}
	if !phonenumbers.IsValidNumber(num) {
		checks[model.CheckPhoneValid] = model.CheckResult{Pass: false, Evidence: "not a valid US number"}
		return
	}
	checks[model.CheckPhoneValid] = model.CheckResult{
		Pass:     true,
		Evidence: phonenumbers.Format(num, phonenumbers.NATIONAL),
	}
}

// checkAddress geocodes the candidate's address with city/state/zip context
// and writes resolved coordinates back onto the candidate. Returns how long
// the geocoder call took (zero when the check was skipped).
func (a *Agent) checkAddress(ctx context.Context, cand *model.NormalizedResource, checks map[string]model.CheckResult, tracker *cost.Tracker) time.Duration {
	if a.skipGeocoding {
		checks[model.CheckAddressGeocoded] = model.CheckResult{Skipped: true, Evidence: "geocoding disabled"}
		return 0
	}
	if cand.Address == "" {
		checks[model.CheckAddressGeocoded] = model.CheckResult{Skipped: true, Evidence: "no address on record"}
		return 0
	}

	tracker.RecordCall()
	start := time.Now()
	res, err := a.geocoder.Geocode(ctx, geocode.AddressInput{
		Street:  cand.Address,
		City:    cand.City,
		State:   cand.State,
		ZipCode: cand.ZipCode,
	})
	took := time.Since(start)
	if err != nil {
		checks[model.CheckAddressGeocoded] = model.CheckResult{Pass: false, Evidence: "geocoding error: " + err.Error()}
		return took
	}
	if !res.Matched {
		checks[model.CheckAddressGeocoded] = model.CheckResult{Pass: false, Evidence: "no geocoder match"}
		return took
	}

	lat, lng := res.Latitude, res.Longitude
	cand.Latitude = &lat
	cand.Longitude = &lng
	if res.FormattedAddress != "" {
		cand.FormattedAddress = res.FormattedAddress
	}
	if res.County != "" {
		cand.County = res.County
	}

	conf := res.Confidence
	checks[model.CheckAddressGeocoded] = model.CheckResult{
		Pass:       true,
		Confidence: &conf,
		Evidence:   fmt.Sprintf("%s match via %s", res.Quality, res.Source),
	}
	return took
}
