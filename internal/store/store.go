// Package store persists import jobs, their records, verification logs, and
// cost telemetry. Postgres is the primary backend; SQLite serves local runs.
package store

import (
	"context"

	"github.com/communityroots/resource-cli/internal/model"
)

// JobFilter specifies criteria for listing import jobs.
type JobFilter struct {
	Status     model.JobStatus `json:"status,omitempty"`
	SourceName string          `json:"source_name,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the import pipeline. Status
// transition legality is the orchestrator's job; the store records what it
// is told and stamps updated_at/completed_at.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.ImportJob) error
	GetJob(ctx context.Context, jobID string) (*model.ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ImportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	UpdateJobCounts(ctx context.Context, jobID string, counts model.JobCounts) error
	AppendJobError(ctx context.Context, jobID string, jobErr model.JobError) error

	// Checkpoints (stored on the job row)
	SaveCheckpoint(ctx context.Context, jobID string, cp model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, jobID string) (*model.Checkpoint, error)

	// Records
	InsertRecords(ctx context.Context, records []model.ImportRecord) error
	UpdateRecord(ctx context.Context, rec *model.ImportRecord) error
	// ListPendingRecords returns the job's pending records with seq > afterSeq,
	// ordered by seq. limit <= 0 means no limit.
	ListPendingRecords(ctx context.Context, jobID string, afterSeq, limit int) ([]model.ImportRecord, error)

	// Verification and cost telemetry
	InsertVerificationLog(ctx context.Context, entry *model.VerificationLog) error
	InsertCostEntries(ctx context.Context, entries []model.CostEntry) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
