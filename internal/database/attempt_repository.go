package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leadforge/pipeline/internal/domain"
)

// attemptSelectList is the column list for SELECT on job_attempts.
const attemptSelectList = `id, job_id, attempt_number, status, error, started_at, finished_at`

// AttemptRepository is the job attempt ledger: it records one row per
// execution pass and enforces monotonic attempt numbers and idempotent
// close. No business logic beyond that.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new repository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Open inserts a running attempt with the next attempt number for the job.
// The number is computed inside the INSERT so concurrent opens cannot
// produce duplicates under read-committed isolation combined with the
// (job_id, attempt_number) unique constraint.
func (r *AttemptRepository) Open(ctx context.Context, jobID string) (*domain.JobAttempt, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO job_attempts (id, job_id, attempt_number, status, started_at)
		SELECT $1, $2, COALESCE(MAX(attempt_number), 0) + 1, 'running', NOW()
		FROM job_attempts
		WHERE job_id = $2
		RETURNING ` + attemptSelectList

	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, id, jobID))
	if err != nil {
		return nil, fmt.Errorf("open attempt: %w", err)
	}
	return a, nil
}

// Close finishes an attempt. Closing an already-closed attempt is a no-op,
// not an error, to tolerate duplicate signal delivery.
func (r *AttemptRepository) Close(ctx context.Context, attemptID string, status domain.AttemptStatus, errMsg *string) error {
	query := `
		UPDATE job_attempts
		SET status = $2,
		    error = $3,
		    finished_at = NOW()
		WHERE id = $1 AND status = 'running'`

	_, err := r.db.ExecContext(ctx, query, attemptID, status, errMsg)
	if err != nil {
		return fmt.Errorf("close attempt: %w", err)
	}
	return nil
}

// Latest returns the highest-numbered attempt for a job.
func (r *AttemptRepository) Latest(ctx context.Context, jobID string) (*domain.JobAttempt, error) {
	query := `SELECT ` + attemptSelectList + `
		FROM job_attempts
		WHERE job_id = $1
		ORDER BY attempt_number DESC
		LIMIT 1`

	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest attempt: %w", err)
	}
	return a, nil
}

// CancelOpenForCampaign closes every running attempt belonging to the
// campaign's jobs as cancelled. Part of the pause/delete sweep.
func (r *AttemptRepository) CancelOpenForCampaign(ctx context.Context, campaignID, reason string) (int64, error) {
	query := `
		UPDATE job_attempts
		SET status = 'cancelled',
		    error = $2,
		    finished_at = NOW()
		WHERE status = 'running'
		  AND job_id IN (SELECT id FROM campaign_jobs WHERE campaign_id = $1)`

	result, err := r.db.ExecContext(ctx, query, campaignID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel attempts: %w", err)
	}
	return result.RowsAffected()
}

func scanAttempt(row rowScanner) (*domain.JobAttempt, error) {
	var a domain.JobAttempt
	err := row.Scan(
		&a.ID, &a.JobID, &a.AttemptNumber, &a.Status, &a.Error, &a.StartedAt, &a.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
