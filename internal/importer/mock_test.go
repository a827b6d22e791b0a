package importer

import (
	"context"
	"sync"

	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/store"
	"github.com/communityroots/resource-cli/pkg/publish"
)

// fakeVerifier counts calls and delegates to fn, which tests use to shape
// per-record outcomes or to flip job state mid-run.
type fakeVerifier struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, cand *model.NormalizedResource) (*model.VerificationResult, error)
}

func (f *fakeVerifier) Verify(_ context.Context, cand *model.NormalizedResource, _ model.RunType) (*model.VerificationResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, cand)
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePublisher records every submitted batch and delegates to fn.
type fakePublisher struct {
	mu      sync.Mutex
	batches [][]model.NormalizedResource
	fn      func(req publish.SubmissionRequest) (*publish.SubmissionResponse, error)
}

func (f *fakePublisher) Submit(_ context.Context, req publish.SubmissionRequest) (*publish.SubmissionResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, req.Resources)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakePublisher) submittedBatches() [][]model.NormalizedResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

// recordingStore captures the terminal state of every record written through
// UpdateRecord, since the store exposes no read path for processed records.
type recordingStore struct {
	store.Store
	mu      sync.Mutex
	updated map[int]model.ImportRecord
}

func newRecordingStore(st store.Store) *recordingStore {
	return &recordingStore{Store: st, updated: make(map[int]model.ImportRecord)}
}

func (r *recordingStore) UpdateRecord(ctx context.Context, rec *model.ImportRecord) error {
	r.mu.Lock()
	r.updated[rec.Seq] = *rec
	r.mu.Unlock()
	return r.Store.UpdateRecord(ctx, rec)
}

func (r *recordingStore) recordAt(seq int) (model.ImportRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.updated[seq]
	return rec, ok
}

// okSubmission answers every resource positionally with a created result.
func okSubmission(req publish.SubmissionRequest) (*publish.SubmissionResponse, error) {
	resp := &publish.SubmissionResponse{Success: true}
	resp.Stats.Total = len(req.Resources)
	resp.Stats.Submitted = len(req.Resources)
	for _, res := range req.Resources {
		resp.Results = append(resp.Results, publish.SubmissionResult{
			SourceID:   res.Source.SourceID,
			Status:     "created",
			ResourceID: "res-" + res.Source.SourceID,
		})
	}
	return resp, nil
}
