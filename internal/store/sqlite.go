package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/communityroots/resource-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// single-operator runs where standing up Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id           TEXT PRIMARY KEY,
	source_name  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	config       TEXT NOT NULL DEFAULT '{}',
	counts       TEXT NOT NULL DEFAULT '{}',
	checkpoint   TEXT,
	error_log    TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS import_records (
	id                    TEXT PRIMARY KEY,
	job_id                TEXT NOT NULL REFERENCES import_jobs(id),
	seq                   INTEGER NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	raw_data              TEXT NOT NULL,
	normalized_data       TEXT,
	resource_id           TEXT NOT NULL DEFAULT '',
	suggestion_id         TEXT NOT NULL DEFAULT '',
	verification_score    REAL,
	verification_decision TEXT NOT NULL DEFAULT '',
	decision_reason       TEXT NOT NULL DEFAULT '',
	error_message         TEXT NOT NULL DEFAULT '',
	geocoding_success     INTEGER NOT NULL DEFAULT 0,
	processing_ms         INTEGER NOT NULL DEFAULT 0,
	geocoding_ms          INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (job_id, seq)
);

CREATE TABLE IF NOT EXISTS verification_logs (
	id            TEXT PRIMARY KEY,
	resource_id   TEXT NOT NULL DEFAULT '',
	suggestion_id TEXT NOT NULL DEFAULT '',
	run_type      TEXT NOT NULL,
	result        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cost_logs (
	id            TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	operation     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status);
CREATE INDEX IF NOT EXISTS idx_import_jobs_source_name ON import_jobs(source_name);
CREATE INDEX IF NOT EXISTS idx_import_records_job_id ON import_records(job_id);
CREATE INDEX IF NOT EXISTS idx_import_records_job_status ON import_records(job_id, status);
CREATE INDEX IF NOT EXISTS idx_verification_logs_resource_id ON verification_logs(resource_id);
CREATE INDEX IF NOT EXISTS idx_cost_logs_operation ON cost_logs(operation);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ImportJob) error {
	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job config")
	}
	countsJSON, err := json.Marshal(job.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job counts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, source_name, status, config, counts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceName, string(job.Status), string(configJSON), string(countsJSON),
		job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_name, status, config, counts, checkpoint, error_log, created_at, updated_at, completed_at
		 FROM import_jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanSQLiteJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ImportJob, error) {
	query := `SELECT id, source_name, status, config, counts, checkpoint, error_log, created_at, updated_at, completed_at
		 FROM import_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SourceName != "" {
		query += ` AND source_name = ?`
		args = append(args, filter.SourceName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ImportJob
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	now := time.Now().UTC()
	var completedAt any
	if status.Terminal() {
		completedAt = now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(status), now, completedAt, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) UpdateJobCounts(ctx context.Context, jobID string, counts model.JobCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job counts")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET counts = ?, updated_at = ? WHERE id = ?`,
		string(countsJSON), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job counts %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) AppendJobError(ctx context.Context, jobID string, jobErr model.JobError) error {
	errJSON, err := json.Marshal(jobErr)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job error")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET error_log = json_insert(error_log, '$[#]', json(?)), updated_at = ? WHERE id = ?`,
		string(errJSON), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append job error %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, jobID string, cp model.Checkpoint) error {
	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET checkpoint = ?, updated_at = ? WHERE id = ?`,
		string(cpJSON), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save checkpoint %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, jobID string) (*model.Checkpoint, error) {
	var cpJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint FROM import_jobs WHERE id = ?`,
		jobID,
	).Scan(&cpJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s", jobID)
	}
	if !cpJSON.Valid || cpJSON.String == "" {
		return nil, nil
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(cpJSON.String), &cp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	return &cp, nil
}

func (s *SQLiteStore) InsertRecords(ctx context.Context, records []model.ImportRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO import_records (id, job_id, seq, status, raw_data, normalized_data,
		 resource_id, suggestion_id, verification_score, verification_decision,
		 decision_reason, error_message, geocoding_success, processing_ms,
		 geocoding_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close()

	for _, r := range records {
		var normalizedJSON any
		if r.NormalizedData != nil {
			b, err := json.Marshal(r.NormalizedData)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal normalized data (seq %d)", r.Seq)
			}
			normalizedJSON = string(b)
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.JobID, r.Seq, string(r.Status), string(r.RawData), normalizedJSON,
			r.ResourceID, r.SuggestionID, r.VerificationScore, string(r.VerificationDecision),
			r.DecisionReason, r.ErrorMessage, r.GeocodingSuccess, r.ProcessingMS,
			r.GeocodingMS, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert record (seq %d)", r.Seq)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert records")
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.ImportRecord) error {
	var normalizedJSON any
	if rec.NormalizedData != nil {
		b, err := json.Marshal(rec.NormalizedData)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal normalized data")
		}
		normalizedJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_records SET status = ?, normalized_data = ?, resource_id = ?, suggestion_id = ?,
		 verification_score = ?, verification_decision = ?, decision_reason = ?, error_message = ?,
		 geocoding_success = ?, processing_ms = ?, geocoding_ms = ?, updated_at = ? WHERE id = ?`,
		string(rec.Status), normalizedJSON, rec.ResourceID, rec.SuggestionID,
		rec.VerificationScore, string(rec.VerificationDecision), rec.DecisionReason, rec.ErrorMessage,
		rec.GeocodingSuccess, rec.ProcessingMS, rec.GeocodingMS, time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ID)
	}
	return checkRowsAffected(res, "record", rec.ID)
}

func (s *SQLiteStore) ListPendingRecords(ctx context.Context, jobID string, afterSeq, limit int) ([]model.ImportRecord, error) {
	query := `SELECT id, job_id, seq, status, raw_data, normalized_data, resource_id, suggestion_id,
		 verification_score, verification_decision, decision_reason, error_message,
		 geocoding_success, processing_ms, geocoding_ms, created_at, updated_at
		 FROM import_records WHERE job_id = ? AND status = ? AND seq > ? ORDER BY seq`
	args := []any{jobID, string(model.RecordStatusPending), afterSeq}

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pending records %s", jobID)
	}
	defer rows.Close()

	var records []model.ImportRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list pending records iterate")
}

func (s *SQLiteStore) InsertVerificationLog(ctx context.Context, entry *model.VerificationLog) error {
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verification result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_logs (id, resource_id, suggestion_id, run_type, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ResourceID, entry.SuggestionID, string(entry.RunType),
		string(resultJSON), entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert verification log %s", entry.ID)
}

func (s *SQLiteStore) InsertCostEntries(ctx context.Context, entries []model.CostEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert cost entries")
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cost_logs (id, provider, model, operation, input_tokens, output_tokens, cost_usd, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Provider, e.Model, e.Operation, e.InputTokens, e.OutputTokens, e.CostUSD, e.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cost entry %s", e.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert cost entries")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanSQLiteJob(row scannable) (*model.ImportJob, error) {
	var j model.ImportJob
	var status, configJSON, countsJSON string
	var checkpointJSON, errorLogJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.SourceName, &status, &configJSON, &countsJSON,
		&checkpointJSON, &errorLogJSON, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	j.Status = model.JobStatus(status)
	if err := json.Unmarshal([]byte(configJSON), &j.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job config")
	}
	if err := json.Unmarshal([]byte(countsJSON), &j.Counts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job counts")
	}
	if checkpointJSON.Valid && checkpointJSON.String != "" {
		j.Checkpoint = json.RawMessage(checkpointJSON.String)
	}
	if errorLogJSON.Valid && errorLogJSON.String != "" {
		if err := json.Unmarshal([]byte(errorLogJSON.String), &j.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job error log")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanSQLiteRecord(row scannable) (*model.ImportRecord, error) {
	var r model.ImportRecord
	var status, decision, rawJSON string
	var normalizedJSON sql.NullString
	var score sql.NullFloat64

	err := row.Scan(&r.ID, &r.JobID, &r.Seq, &status, &rawJSON, &normalizedJSON,
		&r.ResourceID, &r.SuggestionID, &score, &decision,
		&r.DecisionReason, &r.ErrorMessage, &r.GeocodingSuccess, &r.ProcessingMS,
		&r.GeocodingMS, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	r.Status = model.RecordStatus(status)
	r.VerificationDecision = model.Decision(decision)
	r.RawData = json.RawMessage(rawJSON)
	if score.Valid {
		v := score.Float64
		r.VerificationScore = &v
	}
	if normalizedJSON.Valid && normalizedJSON.String != "" {
		r.NormalizedData = &model.NormalizedResource{}
		if err := json.Unmarshal([]byte(normalizedJSON.String), r.NormalizedData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal normalized data")
		}
	}
	return &r, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
