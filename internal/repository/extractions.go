package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/statement"
)

// JobRecord is one extraction job row for transfer between layers.
type JobRecord struct {
	ID           uuid.UUID                `json:"id"`
	BatchID      uuid.UUID                `json:"batch_id"`
	FileName     string                   `json:"file_name"`
	Status       constants.FileStatus     `json:"status"`
	ErrorMessage *string                  `json:"error_message,omitempty"`
	CompanyName  *string                  `json:"company_name,omitempty"`
	Completeness *string                  `json:"completeness,omitempty"`
	Result       *statement.FinancialData `json:"result,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	FinishedAt   *time.Time               `json:"finished_at,omitempty"`
}

// ExtractionRepository persists extraction jobs and their results.
type ExtractionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExtractionRepository(db *sql.DB, logger *slog.Logger) *ExtractionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionRepository{db: db, logger: logger}
}

// Create inserts a pending job row.
func (r *ExtractionRepository) Create(ctx context.Context, id, batchID uuid.UUID, fileName string, status constants.FileStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO extraction_jobs (id, batch_id, file_name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), batchID.String(), fileName, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// SetStatus updates a job's in-flight status.
func (r *ExtractionRepository) SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE extraction_jobs SET status = ? WHERE id = ?`,
		string(status), id.String(),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// Finish marks a job terminal. For successes data carries the normalized
// result; for failures errMsg is stored and data is nil.
func (r *ExtractionRepository) Finish(ctx context.Context, id uuid.UUID, status constants.FileStatus, errMsg string, data *statement.FinancialData) error {
	var (
		resultJSON   sql.NullString
		companyName  sql.NullString
		completeness sql.NullString
		errCol       sql.NullString
	)
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
		companyName = sql.NullString{String: data.CompanyName, Valid: true}
		completeness = sql.NullString{String: string(data.Completeness), Valid: true}
	}
	if errMsg != "" {
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE extraction_jobs
		 SET status = ?, error_message = ?, company_name = ?, completeness = ?, result_json = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), errCol, companyName, completeness, resultJSON, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// Get returns one job by id, including its result when done.
func (r *ExtractionRepository) Get(ctx context.Context, id uuid.UUID) (*JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, batch_id, file_name, status, error_message, company_name, completeness, result_json, created_at, finished_at
		 FROM extraction_jobs WHERE id = ?`, id.String())
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// ListByBatch returns every job in a batch in insertion order.
func (r *ExtractionRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*JobRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, batch_id, file_name, status, error_message, company_name, completeness, result_json, created_at, finished_at
		 FROM extraction_jobs WHERE batch_id = ? ORDER BY created_at, id`, batchID.String())
	if err != nil {
		return nil, fmt.Errorf("list batch: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListRecent returns the most recent jobs, newest first.
func (r *ExtractionRepository) ListRecent(ctx context.Context, limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, batch_id, file_name, status, error_message, company_name, completeness, result_json, created_at, finished_at
		 FROM extraction_jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var (
		rec        JobRecord
		idStr      string
		batchStr   string
		status     string
		errMsg     sql.NullString
		company    sql.NullString
		compl      sql.NullString
		resultJSON sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(&idStr, &batchStr, &rec.FileName, &status, &errMsg, &company, &compl, &resultJSON, &rec.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if rec.BatchID, err = uuid.Parse(batchStr); err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	rec.Status = constants.FileStatus(status)
	if errMsg.Valid {
		rec.ErrorMessage = &errMsg.String
	}
	if company.Valid {
		rec.CompanyName = &company.String
	}
	if compl.Valid {
		rec.Completeness = &compl.String
	}
	if finishedAt.Valid {
		rec.FinishedAt = &finishedAt.Time
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var data statement.FinancialData
		if err := json.Unmarshal([]byte(resultJSON.String), &data); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		rec.Result = &data
	}
	return &rec, nil
}

func collectJobs(rows *sql.Rows) ([]*JobRecord, error) {
	var out []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}
