// Package judge runs LLM-backed verification judgments: does a website's
// content match the resource record claiming it, and can a broken URL be
// repaired to the organization's likely current address.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/communityroots/resource-cli/pkg/anthropic"
)

// Judge performs verification judgments.
type Judge interface {
	// JudgeConsistency compares fetched page text against the claimed
	// record fields.
	JudgeConsistency(ctx context.Context, req ConsistencyRequest) (*Judgment, error)

	// RepairURL suggests a corrected URL for an organization whose
	// recorded URL is unreachable. Empty suggestion means no repair.
	RepairURL(ctx context.Context, req RepairRequest) (*Repair, error)
}

// ConsistencyRequest holds the claimed fields and the observed page text.
type ConsistencyRequest struct {
	Name        string
	Description string
	Services    []string
	Address     string
	Phone       string
	PageTitle   string
	PageText    string
}

// Judgment is the outcome of a consistency check.
type Judgment struct {
	Pass         bool
	Confidence   float64 // 0.0-1.0 self-reported confidence
	Evidence     string
	InputTokens  int64
	OutputTokens int64
}

// RepairRequest identifies a broken URL to repair.
type RepairRequest struct {
	Name      string
	City      string
	State     string
	BrokenURL string
}

// Repair is a suggested replacement URL.
type Repair struct {
	SuggestedURL string
	Reason       string
	InputTokens  int64
	OutputTokens int64
}

const consistencySystemPrompt = `You verify social service directory listings. Given a claimed listing and text fetched from its website, decide whether the page plausibly belongs to the claimed organization and still offers the claimed services. Minor wording differences are fine; a different organization, a parked domain, or a closure notice is a failure. Respond with a valid JSON object: {"consistent": <true|false>, "confidence": <0.0-1.0>, "evidence": "<one sentence citing what on the page supports or contradicts the listing>"}`

const consistencyUserPrompt = `Claimed listing:
Name: %s
Description: %s
Services: %s
Address: %s
Phone: %s

Fetched page title: %s
Fetched page text (truncated):
%s`

const repairSystemPrompt = `You fix broken website URLs for social service organizations. Given an organization and its unreachable URL, suggest the most likely current URL (e.g. http-to-https, www prefix, domain migration you are confident about). Only suggest a URL you are reasonably sure belongs to this organization; otherwise return an empty string. Respond with a valid JSON object: {"url": "<suggested url or empty>", "reason": "<brief reason>"}`

const repairUserPrompt = `Organization: %s
Location: %s, %s
Unreachable URL: %s`

// maxPageText caps how much fetched text goes into the prompt.
const maxPageText = 6000

// Option configures the claude judge.
type Option func(*claudeJudge)

// WithModel overrides the model used for judgments.
func WithModel(model string) Option {
	return func(j *claudeJudge) {
		j.model = model
	}
}

type claudeJudge struct {
	client anthropic.Client
	model  string
}

// New creates a Judge backed by the Anthropic API. Judgments are cheap
// classification calls, so the default model is Haiku.
func New(client anthropic.Client, opts ...Option) Judge {
	j := &claudeJudge{
		client: client,
		model:  "claude-haiku-4-5-20251001",
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *claudeJudge) JudgeConsistency(ctx context.Context, req ConsistencyRequest) (*Judgment, error) {
	text := req.PageText
	if len(text) > maxPageText {
		text = text[:maxPageText]
	}
	prompt := fmt.Sprintf(consistencyUserPrompt,
		req.Name, req.Description, strings.Join(req.Services, ", "),
		req.Address, req.Phone, req.PageTitle, text)

	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     j.model,
		MaxTokens: 300,
		System:    []anthropic.SystemBlock{{Text: consistencySystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "judge: consistency call")
	}

	var parsed struct {
		Consistent bool    `json:"consistent"`
		Confidence float64 `json:"confidence"`
		Evidence   string  `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		return nil, eris.Wrap(err, "judge: parse consistency response")
	}

	return &Judgment{
		Pass:         parsed.Consistent,
		Confidence:   clamp01(parsed.Confidence),
		Evidence:     parsed.Evidence,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func (j *claudeJudge) RepairURL(ctx context.Context, req RepairRequest) (*Repair, error) {
	prompt := fmt.Sprintf(repairUserPrompt, req.Name, req.City, req.State, req.BrokenURL)

	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     j.model,
		MaxTokens: 200,
		System:    []anthropic.SystemBlock{{Text: repairSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "judge: url repair call")
	}

	var parsed struct {
		URL    string `json:"url"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		return nil, eris.Wrap(err, "judge: parse repair response")
	}

	return &Repair{
		SuggestedURL: strings.TrimSpace(parsed.URL),
		Reason:       parsed.Reason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// cleanJSON strips markdown fences and surrounding prose so the response
// body parses as a JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
