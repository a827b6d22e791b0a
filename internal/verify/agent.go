// Package verify runs tiered automated checks against one candidate
// resource, detects cross-source conflicts, computes a trust score, and
// renders an auto-approve / flag-for-human / auto-reject decision.
package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/cost"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/pkg/crossref"
	"github.com/communityroots/resource-cli/pkg/geocode"
	"github.com/communityroots/resource-cli/pkg/judge"
	"github.com/communityroots/resource-cli/pkg/probe"
)

// Agent verifies candidate resources. All collaborators are injected;
// the agent itself holds no persistent state and performs no writes.
type Agent struct {
	probe    probe.Client
	geocoder geocode.Client
	judge    judge.Judge
	sources  []crossref.Source

	calc     *cost.Calculator
	recorder func(provider, model, operation string, inputTokens, outputTokens int64, costUSD float64)

	judgeModel    string
	skipGeocoding bool
}

// Option configures the Agent.
type Option func(*Agent)

// WithCostRecorder forwards every priced call to the cost log.
func WithCostRecorder(fn func(provider, model, operation string, inputTokens, outputTokens int64, costUSD float64)) Option {
	return func(a *Agent) {
		a.recorder = fn
	}
}

// WithJudgeModel names the model used for pricing LLM judgment calls.
// It must match the model the injected Judge was built with.
func WithJudgeModel(m string) Option {
	return func(a *Agent) {
		a.judgeModel = m
	}
}

// WithSkipGeocoding disables the address geocoding check.
func WithSkipGeocoding(skip bool) Option {
	return func(a *Agent) {
		a.skipGeocoding = skip
	}
}

// New creates a verification Agent.
func New(pr probe.Client, gc geocode.Client, jd judge.Judge, sources []crossref.Source, calc *cost.Calculator, opts ...Option) *Agent {
	a := &Agent{
		probe:      pr,
		geocoder:   gc,
		judge:      jd,
		sources:    sources,
		calc:       calc,
		judgeModel: "claude-haiku-4-5-20251001",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verify runs the three check tiers against one candidate. Individual check
// failures degrade the score and decision but never abort later tiers; the
// only returned error is context cancellation. The candidate is enriched in
// place with geocoded coordinates and a repaired website URL when those
// checks succeed.
func (a *Agent) Verify(ctx context.Context, cand *model.NormalizedResource, runType model.RunType) (*model.VerificationResult, error) {
	start := time.Now()
	tracker := cost.NewTracker(a.calc, a.recorder)
	checks := make(map[string]model.CheckResult, 6)

	log := zap.L().With(
		zap.String("component", "verify_agent"),
		zap.String("candidate", cand.Name),
		zap.String("run_type", string(runType)),
	)

	// Tier 1: deterministic checks.
	page := a.checkURL(ctx, cand, checks, tracker)
	checkPhone(cand, checks)
	geocodeTook := a.checkAddress(ctx, cand, checks, tracker)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "verify: cancelled after tier 1")
	}

	// Tier 2: AI-assisted content verification.
	a.checkContent(ctx, cand, page, checks, tracker)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "verify: cancelled after tier 2")
	}

	// Tier 3: cross-referencing and conflict detection.
	matches, conflicts := a.crossReference(ctx, cand, checks, tracker)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "verify: cancelled after tier 3")
	}

	score := Score(checks)
	decision, reason := Decide(score, cand, checks, conflicts, matches)

	result := &model.VerificationResult{
		OverallScore:    score,
		Checks:          checks,
		Conflicts:       conflicts,
		Decision:        decision,
		DecisionReason:  reason,
		CrossRefMatches: matches,
		CostUSD:         tracker.TotalUSD(),
		ExternalCalls:   tracker.Calls(),
		Duration:        time.Since(start),
		GeocodeDuration: geocodeTook,
		RunType:         runType,
	}

	log.Info("verification complete",
		zap.Float64("score", score),
		zap.String("decision", string(decision)),
		zap.Int("cross_ref_matches", matches),
		zap.Int("conflicts", len(conflicts)),
		zap.Int("external_calls", result.ExternalCalls),
		zap.Float64("cost_usd", result.CostUSD),
	)
	return result, nil
}
