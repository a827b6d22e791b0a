package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/communityroots/resource-cli/internal/db"
	"github.com/communityroots/resource-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":                 `SELECT id, source_name, status, config, counts, checkpoint, error_log, created_at, updated_at, completed_at FROM import_jobs WHERE id = $1`,
	"update_job_status":       `UPDATE import_jobs SET status = $1, updated_at = $2, completed_at = $3 WHERE id = $4`,
	"update_job_counts":       `UPDATE import_jobs SET counts = $1, updated_at = $2 WHERE id = $3`,
	"save_checkpoint":         `UPDATE import_jobs SET checkpoint = $1, updated_at = $2 WHERE id = $3`,
	"load_checkpoint":         `SELECT checkpoint FROM import_jobs WHERE id = $1`,
	"update_record":           `UPDATE import_records SET status = $1, normalized_data = $2, resource_id = $3, suggestion_id = $4, verification_score = $5, verification_decision = $6, decision_reason = $7, error_message = $8, geocoding_success = $9, processing_ms = $10, geocoding_ms = $11, updated_at = $12 WHERE id = $13`,
	"insert_verification_log": `INSERT INTO verification_logs (id, resource_id, suggestion_id, run_type, result, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id           UUID PRIMARY KEY,
	source_name  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	config       JSONB NOT NULL DEFAULT '{}',
	counts       JSONB NOT NULL DEFAULT '{}',
	checkpoint   JSONB,
	error_log    JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS import_records (
	id                    UUID PRIMARY KEY,
	job_id                UUID NOT NULL REFERENCES import_jobs(id),
	seq                   INTEGER NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	raw_data              JSONB NOT NULL,
	normalized_data       JSONB,
	resource_id           TEXT NOT NULL DEFAULT '',
	suggestion_id         TEXT NOT NULL DEFAULT '',
	verification_score    DOUBLE PRECISION,
	verification_decision TEXT NOT NULL DEFAULT '',
	decision_reason       TEXT NOT NULL DEFAULT '',
	error_message         TEXT NOT NULL DEFAULT '',
	geocoding_success     BOOLEAN NOT NULL DEFAULT FALSE,
	processing_ms         BIGINT NOT NULL DEFAULT 0,
	geocoding_ms          BIGINT NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, seq)
);

CREATE TABLE IF NOT EXISTS verification_logs (
	id            UUID PRIMARY KEY,
	resource_id   TEXT NOT NULL DEFAULT '',
	suggestion_id TEXT NOT NULL DEFAULT '',
	run_type      TEXT NOT NULL,
	result        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cost_logs (
	id            UUID PRIMARY KEY,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status);
CREATE INDEX IF NOT EXISTS idx_import_jobs_source_name ON import_jobs(source_name);
CREATE INDEX IF NOT EXISTS idx_import_records_job_id ON import_records(job_id);
CREATE INDEX IF NOT EXISTS idx_import_records_job_status ON import_records(job_id, status);
CREATE INDEX IF NOT EXISTS idx_verification_logs_resource_id ON verification_logs(resource_id);
CREATE INDEX IF NOT EXISTS idx_cost_logs_operation ON cost_logs(operation);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `SELECT 1`)
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ImportJob) error {
	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job config")
	}
	countsJSON, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job counts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, source_name, status, config, counts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.SourceName, string(job.Status), configJSON, countsJSON, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_name, status, config, counts, checkpoint, error_log, created_at, updated_at, completed_at
		 FROM import_jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	return job, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ImportJob, error) {
	query := `SELECT id, source_name, status, config, counts, checkpoint, error_log, created_at, updated_at, completed_at
		 FROM import_jobs WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SourceName != "" {
		query += fmt.Sprintf(` AND source_name = $%d`, argIdx)
		args = append(args, filter.SourceName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ImportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status.Terminal() {
		completedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET status = $1, updated_at = $2, completed_at = $3 WHERE id = $4`,
		string(status), now, completedAt, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) UpdateJobCounts(ctx context.Context, jobID string, counts model.JobCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job counts")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET counts = $1, updated_at = $2 WHERE id = $3`,
		countsJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job counts %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) AppendJobError(ctx context.Context, jobID string, jobErr model.JobError) error {
	errJSON, err := json.Marshal(jobErr)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job error")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET error_log = error_log || $1::jsonb, updated_at = $2 WHERE id = $3`,
		errJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append job error %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, jobID string, cp model.Checkpoint) error {
	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET checkpoint = $1, updated_at = $2 WHERE id = $3`,
		cpJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save checkpoint %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, jobID string) (*model.Checkpoint, error) {
	var cpJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT checkpoint FROM import_jobs WHERE id = $1`,
		jobID,
	).Scan(&cpJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s", jobID)
	}
	if len(cpJSON) == 0 {
		return nil, nil
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(cpJSON, &cp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
	}
	return &cp, nil
}

var recordColumns = []string{
	"id", "job_id", "seq", "status", "raw_data", "normalized_data",
	"resource_id", "suggestion_id", "verification_score", "verification_decision",
	"decision_reason", "error_message", "geocoding_success", "processing_ms",
	"geocoding_ms", "created_at", "updated_at",
}

func (s *PostgresStore) InsertRecords(ctx context.Context, records []model.ImportRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var normalizedJSON []byte
		if r.NormalizedData != nil {
			b, err := json.Marshal(r.NormalizedData)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal normalized data (seq %d)", r.Seq)
			}
			normalizedJSON = b
		}
		rows = append(rows, []any{
			r.ID, r.JobID, r.Seq, string(r.Status), []byte(r.RawData), normalizedJSON,
			r.ResourceID, r.SuggestionID, r.VerificationScore, string(r.VerificationDecision),
			r.DecisionReason, r.ErrorMessage, r.GeocodingSuccess, r.ProcessingMS,
			r.GeocodingMS, r.CreatedAt, r.UpdatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "import_records", recordColumns, rows)
	return err
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.ImportRecord) error {
	var normalizedJSON []byte
	if rec.NormalizedData != nil {
		b, err := json.Marshal(rec.NormalizedData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal normalized data")
		}
		normalizedJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_records SET status = $1, normalized_data = $2, resource_id = $3, suggestion_id = $4,
		 verification_score = $5, verification_decision = $6, decision_reason = $7, error_message = $8,
		 geocoding_success = $9, processing_ms = $10, geocoding_ms = $11, updated_at = $12 WHERE id = $13`,
		string(rec.Status), normalizedJSON, rec.ResourceID, rec.SuggestionID,
		rec.VerificationScore, string(rec.VerificationDecision), rec.DecisionReason, rec.ErrorMessage,
		rec.GeocodingSuccess, rec.ProcessingMS, rec.GeocodingMS, time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) ListPendingRecords(ctx context.Context, jobID string, afterSeq, limit int) ([]model.ImportRecord, error) {
	query := `SELECT id, job_id, seq, status, raw_data, normalized_data, resource_id, suggestion_id,
		 verification_score, verification_decision, decision_reason, error_message,
		 geocoding_success, processing_ms, geocoding_ms, created_at, updated_at
		 FROM import_records WHERE job_id = $1 AND status = $2 AND seq > $3 ORDER BY seq`
	args := []any{jobID, string(model.RecordStatusPending), afterSeq}

	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pending records %s", jobID)
	}
	defer rows.Close()

	var records []model.ImportRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list pending records iterate")
}

func (s *PostgresStore) InsertVerificationLog(ctx context.Context, entry *model.VerificationLog) error {
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verification result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_logs (id, resource_id, suggestion_id, run_type, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.ResourceID, entry.SuggestionID, string(entry.RunType), resultJSON, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert verification log %s", entry.ID)
}

var costColumns = []string{
	"id", "provider", "model", "operation", "input_tokens", "output_tokens", "cost_usd", "created_at",
}

func (s *PostgresStore) InsertCostEntries(ctx context.Context, entries []model.CostEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			e.ID, e.Provider, e.Model, e.Operation, e.InputTokens, e.OutputTokens, e.CostUSD, e.CreatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "cost_logs", costColumns, rows)
	return err
}

// scanners

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.ImportJob, error) {
	var j model.ImportJob
	var status string
	var configJSON, countsJSON, checkpointJSON, errorLogJSON []byte

	err := row.Scan(&j.ID, &j.SourceName, &status, &configJSON, &countsJSON,
		&checkpointJSON, &errorLogJSON, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(configJSON, &j.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job config")
	}
	if err := json.Unmarshal(countsJSON, &j.Counts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job counts")
	}
	if len(checkpointJSON) > 0 {
		j.Checkpoint = json.RawMessage(checkpointJSON)
	}
	if len(errorLogJSON) > 0 {
		if err := json.Unmarshal(errorLogJSON, &j.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job error log")
		}
	}
	return &j, nil
}

func scanRecord(row scannable) (*model.ImportRecord, error) {
	var r model.ImportRecord
	var status, decision string
	var rawJSON, normalizedJSON []byte

	err := row.Scan(&r.ID, &r.JobID, &r.Seq, &status, &rawJSON, &normalizedJSON,
		&r.ResourceID, &r.SuggestionID, &r.VerificationScore, &decision,
		&r.DecisionReason, &r.ErrorMessage, &r.GeocodingSuccess, &r.ProcessingMS,
		&r.GeocodingMS, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	r.Status = model.RecordStatus(status)
	r.VerificationDecision = model.Decision(decision)
	r.RawData = json.RawMessage(rawJSON)
	if len(normalizedJSON) > 0 {
		r.NormalizedData = &model.NormalizedResource{}
		if err := json.Unmarshal(normalizedJSON, r.NormalizedData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal normalized data")
		}
	}
	return &r, nil
}
