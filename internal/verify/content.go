package verify

import (
	"context"

	"github.com/communityroots/resource-cli/internal/cost"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/pkg/judge"
	"github.com/communityroots/resource-cli/pkg/probe"
)

// checkContent fetches the reachable website's text and asks the judge
// whether it is consistent with the candidate's claims. Runs only when the
// URL check passed.
func (a *Agent) checkContent(ctx context.Context, cand *model.NormalizedResource, page *probe.Page, checks map[string]model.CheckResult, tracker *cost.Tracker) {
	if page == nil {
		checks[model.CheckContentConsistent] = model.CheckResult{Skipped: true, Evidence: "website not reachable"}
		return
	}

	tracker.RecordCall()
	fetched, err := a.probe.FetchText(ctx, page.URL)
	if err != nil {
		checks[model.CheckContentConsistent] = model.CheckResult{Pass: false, Evidence: "fetch failed: " + err.Error()}
		return
	}

	judgment, err := a.judge.JudgeConsistency(ctx, judge.ConsistencyRequest{
		Name:        cand.Name,
		Description: cand.Description,
		Services:    cand.ServicesOffered,
		Address:     cand.FullAddress(),
		Phone:       cand.Phone,
		PageTitle:   fetched.Title,
		PageText:    fetched.Text,
	})
	if err != nil {
		checks[model.CheckContentConsistent] = model.CheckResult{Pass: false, Evidence: "judgment failed: " + err.Error()}
		return
	}
	tracker.RecordClaude(a.judgeModel, "content_consistency", judgment.InputTokens, judgment.OutputTokens)

	conf := judgment.Confidence
	checks[model.CheckContentConsistent] = model.CheckResult{
		Pass:       judgment.Pass,
		Confidence: &conf,
		Evidence:   judgment.Evidence,
	}
}
