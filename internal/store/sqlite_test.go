package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityroots/resource-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestJob() *model.ImportJob {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.ImportJob{
		ID:         uuid.New().String(),
		SourceName: "findhelp",
		Status:     model.JobStatusPending,
		Config: model.JobConfig{
			BatchSize:  50,
			State:      "OR",
			SourceFile: "resources.csv",
		},
		Counts:    model.JobCounts{Total: 120},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestRecord(jobID string, seq int) model.ImportRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return model.ImportRecord{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Seq:       seq,
		Status:    model.RecordStatusPending,
		RawData:   json.RawMessage(`{"name":"Portland Food Pantry"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Jobs ---

func TestSQLite_Job_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "findhelp", got.SourceName)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 50, got.Config.BatchSize)
	assert.Equal(t, "OR", got.Config.State)
	assert.Equal(t, 120, got.Counts.Total)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.ErrorLog)
}

func TestSQLite_Job_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetJob(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestSQLite_Job_UpdateStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, model.JobStatusRunning))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLite_Job_TerminalStatusStampsCompletedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.CompletedAt, 5*time.Second)
}

func TestSQLite_Job_UpdateStatusMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateJobStatus(context.Background(), "nonexistent", model.JobStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestSQLite_Job_UpdateCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	counts := model.JobCounts{Total: 120, Processed: 50, Successful: 40, Flagged: 8, Rejected: 2}
	require.NoError(t, st.UpdateJobCounts(ctx, job.ID, counts))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, counts, got.Counts)
	assert.True(t, got.Counts.Consistent())
}

func TestSQLite_Job_AppendErrors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.AppendJobError(ctx, job.ID, model.JobError{Time: now, Message: "record 12: normalize failed"}))
	require.NoError(t, st.AppendJobError(ctx, job.ID, model.JobError{Time: now, Message: "batch 2: submission failed"}))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.ErrorLog, 2)
	assert.Equal(t, "record 12: normalize failed", got.ErrorLog[0].Message)
	assert.Equal(t, "batch 2: submission failed", got.ErrorLog[1].Message)
}

func TestSQLite_Job_ListFiltered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := newTestJob()
	require.NoError(t, st.CreateJob(ctx, a))
	b := newTestJob()
	b.SourceName = "211oregon"
	require.NoError(t, st.CreateJob(ctx, b))
	require.NoError(t, st.UpdateJobStatus(ctx, b.ID, model.JobStatusRunning))

	running, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, b.ID, running[0].ID)

	bySource, err := st.ListJobs(ctx, JobFilter{SourceName: "findhelp"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, a.ID, bySource[0].ID)

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Checkpoints ---

func TestSQLite_Checkpoint_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	cp := model.Checkpoint{LastProcessedIndex: 50, BatchSize: 50, SavedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, st.SaveCheckpoint(ctx, job.ID, cp))

	got, err := st.LoadCheckpoint(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 50, got.LastProcessedIndex)
	assert.Equal(t, 50, got.BatchSize)
	assert.Equal(t, cp.SavedAt, got.SavedAt)
}

func TestSQLite_Checkpoint_AbsentIsNil(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	got, err := st.LoadCheckpoint(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Checkpoint_MissingJob(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LoadCheckpoint(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

// --- Records ---

func TestSQLite_Records_InsertAndListPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	var records []model.ImportRecord
	for i := 0; i < 5; i++ {
		records = append(records, newTestRecord(job.ID, i))
	}
	require.NoError(t, st.InsertRecords(ctx, records))

	pending, err := st.ListPendingRecords(ctx, job.ID, -1, 0)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	for i, r := range pending {
		assert.Equal(t, i, r.Seq)
		assert.Equal(t, model.RecordStatusPending, r.Status)
		assert.JSONEq(t, `{"name":"Portland Food Pantry"}`, string(r.RawData))
	}
}

func TestSQLite_Records_ListPendingAfterSeqWithLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	var records []model.ImportRecord
	for i := 0; i < 10; i++ {
		records = append(records, newTestRecord(job.ID, i))
	}
	require.NoError(t, st.InsertRecords(ctx, records))

	pending, err := st.ListPendingRecords(ctx, job.ID, 4, 3)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, 5, pending[0].Seq)
	assert.Equal(t, 7, pending[2].Seq)
}

func TestSQLite_Records_InsertEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.InsertRecords(context.Background(), nil))
}

func TestSQLite_Records_UpdateTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := newTestJob()
	require.NoError(t, st.CreateJob(ctx, job))

	rec := newTestRecord(job.ID, 0)
	require.NoError(t, st.InsertRecords(ctx, []model.ImportRecord{rec}))

	score := 0.92
	rec.Status = model.RecordStatusApproved
	rec.NormalizedData = &model.NormalizedResource{Name: "Portland Food Pantry", City: "Portland", State: "OR"}
	rec.ResourceID = "res-1"
	rec.SuggestionID = "sugg-1"
	rec.VerificationScore = &score
	rec.VerificationDecision = model.DecisionAutoApprove
	rec.DecisionReason = "score 0.92 with 2 corroborating sources"
	rec.GeocodingSuccess = true
	rec.ProcessingMS = 1840
	rec.GeocodingMS = 220
	require.NoError(t, st.UpdateRecord(ctx, &rec))

	// Terminal record no longer shows up as pending.
	pending, err := st.ListPendingRecords(ctx, job.ID, -1, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_Records_UpdateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec := newTestRecord(uuid.New().String(), 0)
	err := st.UpdateRecord(context.Background(), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

// --- Verification and cost logs ---

func TestSQLite_VerificationLog_Insert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := &model.VerificationLog{
		ID:           uuid.New().String(),
		SuggestionID: "sugg-1",
		RunType:      model.RunTypeInitial,
		Result: model.VerificationResult{
			OverallScore: 0.92,
			Decision:     model.DecisionAutoApprove,
			Checks: map[string]model.CheckResult{
				model.CheckURLReachable: {Pass: true, Evidence: "HTTP 200"},
			},
			CrossRefMatches: 2,
			RunType:         model.RunTypeInitial,
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.InsertVerificationLog(ctx, entry))

	var resultJSON string
	err := st.db.QueryRowContext(ctx,
		`SELECT result FROM verification_logs WHERE id = ?`, entry.ID,
	).Scan(&resultJSON)
	require.NoError(t, err)

	var result model.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(resultJSON), &result))
	assert.Equal(t, 0.92, result.OverallScore)
	assert.Equal(t, model.DecisionAutoApprove, result.Decision)
	assert.True(t, result.Checks[model.CheckURLReachable].Pass)
}

func TestSQLite_CostEntries_Insert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entries := []model.CostEntry{
		{
			ID: uuid.New().String(), Provider: "anthropic", Model: "claude-haiku-4-5-20251001",
			Operation: "content_consistency", InputTokens: 1200, OutputTokens: 80,
			CostUSD: 0.0014, CreatedAt: time.Now().UTC(),
		},
		{
			ID: uuid.New().String(), Provider: "anthropic", Model: "claude-haiku-4-5-20251001",
			Operation: "url_repair", InputTokens: 300, OutputTokens: 40,
			CostUSD: 0.0005, CreatedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, st.InsertCostEntries(ctx, entries))

	var n int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT count(*) FROM cost_logs`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
