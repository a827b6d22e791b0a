// Package publish submits verified resources to the directory platform's
// bulk suggestion API.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/resilience"
)

// Publisher submits batches of normalized resources for publication.
type Publisher interface {
	Submit(ctx context.Context, req SubmissionRequest) (*SubmissionResponse, error)
}

// SubmissionRequest is one batch submission.
type SubmissionRequest struct {
	Resources         []model.NormalizedResource `json:"resources"`
	Submitter         string                     `json:"submitter"`
	VerificationLevel model.VerificationLevel    `json:"verification_level"`
	Notes             string                     `json:"notes,omitempty"`
}

// SubmissionResponse reports per-resource outcomes. Results are positional:
// Results[i] corresponds to Resources[i] in the request.
type SubmissionResponse struct {
	Success bool               `json:"success"`
	Stats   SubmissionStats    `json:"stats"`
	Results []SubmissionResult `json:"results"`
}

// SubmissionStats tallies the batch outcome.
type SubmissionStats struct {
	Total             int `json:"total"`
	Submitted         int `json:"submitted"`
	AutoApproved      int `json:"auto_approved"`
	Flagged           int `json:"flagged"`
	Rejected          int `json:"rejected"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	Errors            int `json:"errors"`
}

// SubmissionResult is the outcome for one resource.
type SubmissionResult struct {
	SourceID          string   `json:"source_id"`
	Status            string   `json:"status"` // "created", "pending_review", "duplicate", "error"
	ResourceID        string   `json:"resource_id,omitempty"`
	SuggestionID      string   `json:"suggestion_id,omitempty"`
	VerificationScore *float64 `json:"verification_score,omitempty"`
	DecisionReason    string   `json:"decision_reason,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Option configures the publish client.
type Option func(*httpPublisher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *httpPublisher) {
		p.http = hc
	}
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *httpPublisher) {
		p.retry = cfg
	}
}

type httpPublisher struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryConfig
}

// New creates a Publisher for the platform API at baseURL.
func New(baseURL, apiKey string, opts ...Option) Publisher {
	p := &httpPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *httpPublisher) Submit(ctx context.Context, req SubmissionRequest) (*SubmissionResponse, error) {
	if len(req.Resources) == 0 {
		return nil, eris.New("publish: empty submission")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "publish: marshal submission")
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*SubmissionResponse, error) {
		return p.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Results) != len(req.Resources) {
		return nil, eris.Errorf("publish: got %d results for %d resources", len(resp.Results), len(req.Resources))
	}
	return resp, nil
}

func (p *httpPublisher) post(ctx context.Context, payload []byte) (*SubmissionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/suggestions/bulk", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "publish: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "publish: request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "publish: read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := eris.Errorf("publish: platform returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed SubmissionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "publish: decode response")
	}
	return &parsed, nil
}
