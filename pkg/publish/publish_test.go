package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/resilience"
)

func testResources(n int) []model.NormalizedResource {
	out := make([]model.NormalizedResource, n)
	for i := range out {
		out[i] = model.NormalizedResource{Name: "Resource", City: "Portland", State: "OR"}
	}
	return out
}

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return cfg
}

func TestSubmit_PositionalResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/suggestions/bulk", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req SubmissionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Resources, 2)
		assert.Equal(t, model.LevelGovernment, req.VerificationLevel)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"success": true,
			"stats": {"total": 2, "submitted": 2, "auto_approved": 1, "flagged": 1},
			"results": [
				{"source_id": "src-1", "resource_id": "r-1", "status": "created"},
				{"source_id": "src-2", "suggestion_id": "s-2", "status": "pending_review"}
			]
		}`)
	}))
	defer srv.Close()

	p := New(srv.URL, "test-token")
	resp, err := p.Submit(context.Background(), SubmissionRequest{
		Resources:         testResources(2),
		Submitter:         "import-job-abc",
		VerificationLevel: model.LevelGovernment,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Stats.AutoApproved)
	assert.Equal(t, "r-1", resp.Results[0].ResourceID)
	assert.Equal(t, "s-2", resp.Results[1].SuggestionID)
	assert.Equal(t, "pending_review", resp.Results[1].Status)
}

func TestSubmit_ResultCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success": true, "results": [{"status": "created"}]}`)
	}))
	defer srv.Close()

	p := New(srv.URL, "test-token")
	_, err := p.Submit(context.Background(), SubmissionRequest{Resources: testResources(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results for 3 resources")
}

func TestSubmit_EmptyBatchRejected(t *testing.T) {
	p := New("http://unused.example", "t")
	_, err := p.Submit(context.Background(), SubmissionRequest{})
	require.Error(t, err)
}

func TestSubmit_RetriesOn503(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success": true, "stats": {"total": 1, "submitted": 1}, "results": [{"status": "created"}]}`)
	}))
	defer srv.Close()

	p := New(srv.URL, "test-token", WithRetry(fastRetry()))
	resp, err := p.Submit(context.Background(), SubmissionRequest{Resources: testResources(1)})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, calls)
}

func TestSubmit_BadRequestFailsFast(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := New(srv.URL, "test-token", WithRetry(fastRetry()))
	_, err := p.Submit(context.Background(), SubmissionRequest{Resources: testResources(1)})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
