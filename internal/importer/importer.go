// Package importer drives import jobs end to end: fixed-size sequential
// batches of normalize → verify → publish, with durable checkpoints so a
// paused job resumes exactly where it stopped.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/communityroots/resource-cli/internal/mapper"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/internal/store"
	"github.com/communityroots/resource-cli/pkg/publish"
)

// DefaultBatchSize is used when a job config declares no batch size.
const DefaultBatchSize = 50

// Verifier runs the verification pipeline over one candidate.
type Verifier interface {
	Verify(ctx context.Context, cand *model.NormalizedResource, runType model.RunType) (*model.VerificationResult, error)
}

// Orchestrator processes one import job at a time. Instances share no mutable
// state, so independent jobs may run as independent orchestrators.
type Orchestrator struct {
	store     store.Store
	verifier  Verifier
	publisher publish.Publisher
	mapping   *mapper.MappingConfig
	limiter   *rate.Limiter
	submitter string
	log       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSubmitter sets the submitter identity attached to publication batches.
func WithSubmitter(name string) Option {
	return func(o *Orchestrator) {
		o.submitter = name
	}
}

// New creates an Orchestrator for one source. If the mapping config declares
// a requests-per-minute budget, record processing is paced to honor it.
func New(st store.Store, v Verifier, pub publish.Publisher, mapping *mapper.MappingConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		verifier:  v,
		publisher: pub,
		mapping:   mapping,
		submitter: "resource-cli",
		log:       zap.L().Named("importer"),
	}
	if mapping != nil && mapping.RequestsPerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(mapping.RequestsPerMinute)/60, 1)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateJob persists a pending job plus every raw record, so the job can be
// resumed later without access to the original source file.
func (o *Orchestrator) CreateJob(ctx context.Context, cfg model.JobConfig, rawRecords []map[string]any) (*model.ImportJob, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	now := time.Now().UTC()
	job := &model.ImportJob{
		ID:         uuid.New().String(),
		SourceName: o.mapping.SourceName,
		Status:     model.JobStatusPending,
		Config:     cfg,
		Counts:     model.JobCounts{Total: len(rawRecords)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	records := make([]model.ImportRecord, 0, len(rawRecords))
	for i, raw := range rawRecords {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: marshal raw record %d", i)
		}
		records = append(records, model.ImportRecord{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			Seq:       i,
			Status:    model.RecordStatusPending,
			RawData:   data,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := o.store.InsertRecords(ctx, records); err != nil {
		return nil, err
	}

	o.log.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("source", job.SourceName),
		zap.Int("records", len(records)),
		zap.Int("batch_size", cfg.BatchSize))
	return job, nil
}

// Run starts a pending job and processes it to completion, pause, or failure.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(model.JobStatusRunning) {
		return eris.Errorf("importer: job %s is %s, cannot start", jobID, job.Status)
	}
	if err := o.store.UpdateJobStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		return err
	}
	job.Status = model.JobStatusRunning

	records, err := o.store.ListPendingRecords(ctx, jobID, -1, 0)
	if err != nil {
		return err
	}
	return o.run(ctx, job, records)
}

// Resume continues a paused job from its checkpoint. Only records after
// last_processed_index are loaded; nothing already processed is revisited.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusPaused {
		return eris.Errorf("importer: job %s is %s, only paused jobs resume", jobID, job.Status)
	}

	cp, err := o.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		return err
	}
	if cp == nil {
		return eris.Errorf("importer: job %s has no checkpoint", jobID)
	}

	if err := o.store.UpdateJobStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		return err
	}
	job.Status = model.JobStatusRunning
	if cp.BatchSize > 0 {
		job.Config.BatchSize = cp.BatchSize
	}

	records, err := o.store.ListPendingRecords(ctx, jobID, cp.LastProcessedIndex-1, 0)
	if err != nil {
		return err
	}

	o.log.Info("job resumed",
		zap.String("job_id", jobID),
		zap.Int("last_processed_index", cp.LastProcessedIndex),
		zap.Int("remaining", len(records)))
	return o.run(ctx, job, records)
}

// Pause requests a pause. It takes effect at the next batch boundary.
func (o *Orchestrator) Pause(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(model.JobStatusPaused) {
		return eris.Errorf("importer: job %s is %s, cannot pause", jobID, job.Status)
	}
	return o.store.UpdateJobStatus(ctx, jobID, model.JobStatusPaused)
}

// run wraps processing with the single top-level catch: any error that
// escapes batch processing lands in the job's error log and the job is marked
// failed rather than left running.
func (o *Orchestrator) run(ctx context.Context, job *model.ImportJob, records []model.ImportRecord) error {
	err := o.process(ctx, job, records)
	if err == nil {
		return nil
	}

	o.log.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))

	// Failure bookkeeping must land even when ctx itself is what failed.
	bgCtx := context.WithoutCancel(ctx)
	jobErr := model.JobError{Time: time.Now().UTC(), Message: err.Error()}
	if aerr := o.store.AppendJobError(bgCtx, job.ID, jobErr); aerr != nil {
		o.log.Error("append job error", zap.String("job_id", job.ID), zap.Error(aerr))
	}
	if serr := o.store.UpdateJobStatus(bgCtx, job.ID, model.JobStatusFailed); serr != nil {
		o.log.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(serr))
	}
	return err
}

func (o *Orchestrator) process(ctx context.Context, job *model.ImportJob, records []model.ImportRecord) error {
	batchSize := job.Config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	counts := job.Counts

	for start := 0; start < len(records); start += batchSize {
		paused, err := o.shouldPause(ctx, job.ID)
		if err != nil {
			return err
		}
		if paused {
			cp := model.Checkpoint{
				LastProcessedIndex: records[start].Seq,
				BatchSize:          batchSize,
				SavedAt:            time.Now().UTC(),
			}
			// The checkpoint must be durable before we hand control back.
			if err := o.store.SaveCheckpoint(ctx, job.ID, cp); err != nil {
				return err
			}
			o.log.Info("job paused",
				zap.String("job_id", job.ID),
				zap.Int("last_processed_index", cp.LastProcessedIndex))
			return nil
		}

		end := min(start+batchSize, len(records))
		batch := records[start:end]
		if err := o.processBatch(ctx, job, batch, &counts); err != nil {
			return err
		}

		if !counts.Consistent() {
			o.log.Warn("job counts inconsistent",
				zap.String("job_id", job.ID),
				zap.Int("processed", counts.Processed))
		}
		if err := o.store.UpdateJobCounts(ctx, job.ID, counts); err != nil {
			return err
		}
		cp := model.Checkpoint{
			LastProcessedIndex: batch[len(batch)-1].Seq + 1,
			BatchSize:          batchSize,
			SavedAt:            time.Now().UTC(),
		}
		if err := o.store.SaveCheckpoint(ctx, job.ID, cp); err != nil {
			return err
		}
	}

	if err := o.store.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted); err != nil {
		return err
	}
	o.log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("processed", counts.Processed),
		zap.Int("successful", counts.Successful),
		zap.Int("flagged", counts.Flagged),
		zap.Int("rejected", counts.Rejected),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped))
	return nil
}

// submission pairs a record with its normalized form while a batch awaits
// publication.
type submission struct {
	rec    *model.ImportRecord
	res    *model.NormalizedResource
	result *model.VerificationResult
}

func (o *Orchestrator) processBatch(ctx context.Context, job *model.ImportJob, batch []model.ImportRecord, counts *model.JobCounts) error {
	var pending []submission

	for i := range batch {
		rec := &batch[i]
		start := time.Now()

		var raw map[string]any
		if err := json.Unmarshal(rec.RawData, &raw); err != nil {
			o.failRecord(ctx, rec, counts, eris.Wrap(err, "importer: decode raw record"))
			continue
		}

		norm, err := mapper.Normalize(raw, o.mapping)
		if err != nil {
			// Normalization failures are isolated to their record.
			o.failRecord(ctx, rec, counts, err)
			continue
		}
		if job.Config.LevelOverride != "" {
			norm.VerificationLevel = job.Config.LevelOverride
		}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "importer: rate wait")
			}
		}

		result, err := o.verifier.Verify(ctx, norm, model.RunTypeInitial)
		if err != nil {
			return eris.Wrapf(err, "importer: verify record %d", rec.Seq)
		}

		score := result.OverallScore
		rec.NormalizedData = norm
		rec.VerificationScore = &score
		rec.VerificationDecision = result.Decision
		rec.DecisionReason = result.DecisionReason
		rec.GeocodingSuccess = result.Checks[model.CheckAddressGeocoded].Pass
		rec.ProcessingMS = time.Since(start).Milliseconds()
		rec.GeocodingMS = result.GeocodeDuration.Milliseconds()

		if result.Decision == model.DecisionAutoReject {
			rec.Status = model.RecordStatusRejected
			counts.Rejected++
			counts.Processed++
			if err := o.store.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			if err := o.saveVerificationLog(ctx, rec, result); err != nil {
				return err
			}
			continue
		}

		pending = append(pending, submission{rec: rec, res: norm, result: result})
	}

	if len(pending) == 0 {
		return nil
	}

	level := o.mapping.VerificationLevel
	if job.Config.LevelOverride != "" {
		level = job.Config.LevelOverride
	}
	resources := make([]model.NormalizedResource, len(pending))
	for i, p := range pending {
		resources[i] = *p.res
	}

	resp, err := o.publisher.Submit(ctx, publish.SubmissionRequest{
		Resources:         resources,
		Submitter:         o.submitter,
		VerificationLevel: level,
		Notes:             fmt.Sprintf("import job %s", job.ID),
	})
	if err != nil {
		// A failed batch submission is fatal: every in-flight record errors
		// and the caller marks the job failed.
		subErr := eris.Wrap(err, "importer: batch submission")
		for _, p := range pending {
			o.failRecord(ctx, p.rec, counts, subErr)
		}
		if cerr := o.store.UpdateJobCounts(context.WithoutCancel(ctx), job.ID, *counts); cerr != nil {
			o.log.Error("update job counts", zap.String("job_id", job.ID), zap.Error(cerr))
		}
		return subErr
	}

	// Results are positional: resp.Results[i] answers resources[i]. The
	// platform IDs land on the record only for approved/flagged outcomes;
	// a duplicate result may carry the existing resource's ID, which is not
	// ours to claim.
	for i, p := range pending {
		r := resp.Results[i]

		switch {
		case r.Status == "error":
			p.rec.Status = model.RecordStatusError
			p.rec.ErrorMessage = r.Error
			counts.Failed++
		case r.Status == "duplicate":
			p.rec.Status = model.RecordStatusSkipped
			counts.Skipped++
		case p.result.Decision == model.DecisionAutoApprove:
			p.rec.Status = model.RecordStatusApproved
			p.rec.ResourceID = r.ResourceID
			p.rec.SuggestionID = r.SuggestionID
			counts.Successful++
		default:
			p.rec.Status = model.RecordStatusFlagged
			p.rec.ResourceID = r.ResourceID
			p.rec.SuggestionID = r.SuggestionID
			counts.Flagged++
		}
		counts.Processed++

		if err := o.store.UpdateRecord(ctx, p.rec); err != nil {
			return err
		}
		if err := o.saveVerificationLog(ctx, p.rec, p.result); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) saveVerificationLog(ctx context.Context, rec *model.ImportRecord, result *model.VerificationResult) error {
	return o.store.InsertVerificationLog(ctx, &model.VerificationLog{
		ID:           uuid.New().String(),
		ResourceID:   rec.ResourceID,
		SuggestionID: rec.SuggestionID,
		RunType:      result.RunType,
		Result:       *result,
		CreatedAt:    time.Now().UTC(),
	})
}

func (o *Orchestrator) failRecord(ctx context.Context, rec *model.ImportRecord, counts *model.JobCounts, cause error) {
	rec.Status = model.RecordStatusError
	rec.ErrorMessage = cause.Error()
	counts.Failed++
	counts.Processed++
	if err := o.store.UpdateRecord(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Error("update failed record", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// shouldPause polls the job row; pause is cooperative and honored only at
// batch boundaries.
func (o *Orchestrator) shouldPause(ctx context.Context, jobID string) (bool, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, eris.Wrap(err, "importer: poll job status")
	}
	return job.Status == model.JobStatusPaused, nil
}
