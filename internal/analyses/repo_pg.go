package analyses

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `id, file_name, original_query, status, analysis_result, error_message, processing_time, file_size, created_at, updated_at`

// Create inserts a new record in pending state.
func (r *PGRepo) Create(ctx context.Context, a Analysis) error {
	const query = `
INSERT INTO analyses (
    id,
    file_name,
    original_query,
    status,
    file_size
) VALUES ($1::uuid, $2, $3, $4, $5)`

	status := a.Status
	if status == "" {
		status = StatusPending
	}
	_, err := r.DB.ExecContext(ctx, query, a.ID, a.FileName, a.OriginalQuery, status, a.FileSize)
	return err
}

// GetByID fetches a record by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Analysis, error) {
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE id = $1::uuid
LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

// MarkProcessing claims a pending record. A processing record may be
// reclaimed, so a redelivery of an interrupted job can retry; the
// status guard only keeps a replayed claim from reopening a terminal
// record.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string) error {
	const query = `
UPDATE analyses
SET status = 'processing',
    updated_at = now()
WHERE id = $1::uuid AND status IN ('pending', 'processing')`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.transitionRefused(ctx, id)
	}
	return nil
}

// MarkCompleted stores the result and finishes the record.
func (r *PGRepo) MarkCompleted(ctx context.Context, id, result string, processingTime float64) error {
	const query = `
UPDATE analyses
SET status = 'completed',
    analysis_result = $1,
    error_message = '',
    processing_time = $2,
    updated_at = now()
WHERE id = $3::uuid AND status = 'processing'`
	res, err := r.DB.ExecContext(ctx, query, result, processingTime, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.transitionRefused(ctx, id)
	}
	return nil
}

// MarkFailed stores the error message and finishes the record. Both
// pending and processing records may fail: submissions that never
// reach the queue are failed directly by the service.
func (r *PGRepo) MarkFailed(ctx context.Context, id, errorMessage string, processingTime *float64) error {
	const query = `
UPDATE analyses
SET status = 'failed',
    error_message = $1,
    analysis_result = '',
    processing_time = COALESCE($2::double precision, processing_time),
    updated_at = now()
WHERE id = $3::uuid AND status IN ('pending', 'processing')`
	res, err := r.DB.ExecContext(ctx, query, errorMessage, processingTime, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.transitionRefused(ctx, id)
	}
	return nil
}

// transitionRefused distinguishes a missing record from one whose
// current status blocked the guarded update.
func (r *PGRepo) transitionRefused(ctx context.Context, id string) error {
	const query = `SELECT 1 FROM analyses WHERE id = $1::uuid LIMIT 1`
	var one int
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

// List returns a page of records newest-first, optionally filtered by
// status, plus the total count for the same filter.
func (r *PGRepo) List(ctx context.Context, status string, skip, limit int) ([]Analysis, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	const countQuery = `
SELECT count(*)
FROM analyses
WHERE ($1 = '' OR status = $1)`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, status, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Delete removes a record.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM analyses WHERE id = $1::uuid`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminalBefore removes expired completed and failed records.
// Pending and processing records are never swept.
func (r *PGRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
DELETE FROM analyses
WHERE status IN ('completed', 'failed') AND created_at < $1`
	res, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FailStaleProcessing fails records claimed before cutoff that never
// reached a terminal state, usually because a worker crashed mid-job.
func (r *PGRepo) FailStaleProcessing(ctx context.Context, cutoff time.Time, errorMessage string) (int, error) {
	const query = `
UPDATE analyses
SET status = 'failed',
    error_message = $1,
    updated_at = now()
WHERE status = 'processing' AND updated_at < $2`
	res, err := r.DB.ExecContext(ctx, query, errorMessage, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var result sql.NullString
	var errMsg sql.NullString
	var procTime sql.NullFloat64
	var fileSize sql.NullInt64
	if err := row.Scan(
		&a.ID,
		&a.FileName,
		&a.OriginalQuery,
		&a.Status,
		&result,
		&errMsg,
		&procTime,
		&fileSize,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Analysis{}, err
	}
	if result.Valid {
		a.AnalysisResult = result.String
	}
	if errMsg.Valid {
		a.ErrorMessage = errMsg.String
	}
	if procTime.Valid {
		a.ProcessingTime = &procTime.Float64
	}
	if fileSize.Valid {
		a.FileSize = fileSize.Int64
	}
	return a, nil
}

var _ Repo = (*PGRepo)(nil)
