package model

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of an import job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// jobTransitions encodes the legal job state machine:
// pending → running → {paused, completed, failed, cancelled}; paused → running.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusPaused, JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusPaused:  {JobStatusRunning},
}

// CanTransition reports whether a job may move from its current status to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, t := range jobTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return len(jobTransitions[s]) == 0
}

// JobConfig captures the per-run configuration recorded on an import job.
type JobConfig struct {
	BatchSize     int               `json:"batch_size"`
	SkipGeocoding bool              `json:"skip_geocoding"`
	LevelOverride VerificationLevel `json:"level_override,omitempty"`
	State         string            `json:"state,omitempty"`
	SourceFile    string            `json:"source_file,omitempty"`
}

// JobCounts aggregates per-record outcomes for a job. Processed must equal
// Successful+Failed+Flagged+Rejected+Skipped whenever no batch is in flight.
type JobCounts struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Flagged    int `json:"flagged"`
	Rejected   int `json:"rejected"`
	Skipped    int `json:"skipped"`
}

// Consistent reports whether the processed count matches the sum of outcomes.
func (c JobCounts) Consistent() bool {
	return c.Processed == c.Successful+c.Failed+c.Flagged+c.Rejected+c.Skipped
}

// JobError is one entry in a job's error log.
type JobError struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ImportJob is one ingestion run over a set of raw records.
type ImportJob struct {
	ID          string          `json:"id"`
	SourceName  string          `json:"source_name"`
	Status      JobStatus       `json:"status"`
	Config      JobConfig       `json:"config"`
	Counts      JobCounts       `json:"counts"`
	Checkpoint  json.RawMessage `json:"checkpoint,omitempty"`
	ErrorLog    []JobError      `json:"error_log,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RecordStatus represents one raw record's position in the pipeline.
type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusProcessing RecordStatus = "processing"
	RecordStatusGeocoding  RecordStatus = "geocoding"
	RecordStatusVerifying  RecordStatus = "verifying"
	RecordStatusApproved   RecordStatus = "approved"
	RecordStatusFlagged    RecordStatus = "flagged"
	RecordStatusRejected   RecordStatus = "rejected"
	RecordStatusError      RecordStatus = "error"
	RecordStatusSkipped    RecordStatus = "skipped"
)

// TerminalRecord reports whether the status is a terminal record state.
func (s RecordStatus) TerminalRecord() bool {
	switch s {
	case RecordStatusApproved, RecordStatusFlagged, RecordStatusRejected,
		RecordStatusError, RecordStatusSkipped:
		return true
	}
	return false
}

// ImportRecord tracks one raw record's journey through an import job.
// ResourceID/SuggestionID are set iff the terminal status is approved or flagged.
type ImportRecord struct {
	ID             string              `json:"id"`
	JobID          string              `json:"job_id"`
	Seq            int                 `json:"seq"`
	Status         RecordStatus        `json:"status"`
	RawData        json.RawMessage     `json:"raw_data"`
	NormalizedData *NormalizedResource `json:"normalized_data,omitempty"`

	ResourceID   string `json:"resource_id,omitempty"`
	SuggestionID string `json:"suggestion_id,omitempty"`

	VerificationScore    *float64 `json:"verification_score,omitempty"`
	VerificationDecision Decision `json:"verification_decision,omitempty"`
	DecisionReason       string   `json:"decision_reason,omitempty"`
	ErrorMessage         string   `json:"error_message,omitempty"`

	GeocodingSuccess bool  `json:"geocoding_success"`
	ProcessingMS     int64 `json:"processing_ms"`
	GeocodingMS      int64 `json:"geocoding_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpoint is the durable resume state written at batch boundaries.
type Checkpoint struct {
	LastProcessedIndex int       `json:"last_processed_index"`
	BatchSize          int       `json:"batch_size"`
	SavedAt            time.Time `json:"saved_at"`
}
