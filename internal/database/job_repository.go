package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/leadforge/pipeline/internal/domain"
)

// pqUniqueViolation is the Postgres error code for unique constraint
// violations, raised on idempotency-key collisions and when the partial
// unique index on running jobs rejects a second claim for a campaign.
const pqUniqueViolation = "23505"

// jobSelectList is the column list for SELECT on campaign_jobs.
const jobSelectList = `id, campaign_id, user_id, job_type, idempotency_key, status,
			attempt_count, leads_processed, leads_written, total_pages,
			last_error, started_at, finished_at, next_run_at, created_at, updated_at`

// JobRepository manages campaign job rows. The job row is the source of
// truth for execution state; the queue only references it by id.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a pending job. A duplicate idempotency key returns
// domain.ErrConflict instead of a second job.
func (r *JobRepository) Create(ctx context.Context, j *domain.CampaignJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	query := `
		INSERT INTO campaign_jobs (id, campaign_id, user_id, job_type, idempotency_key,
			status, attempt_count, leads_processed, leads_written, total_pages,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.CampaignID, j.UserID, j.JobType, j.IdempotencyKey, j.Status,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return fmt.Errorf("%w: idempotency key %q", domain.ErrConflict, j.IdempotencyKey)
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID retrieves a single job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.CampaignJob, error) {
	query := `SELECT ` + jobSelectList + ` FROM campaign_jobs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// LatestForCampaign returns the most recently created job for a campaign.
func (r *JobRepository) LatestForCampaign(ctx context.Context, campaignID string) (*domain.CampaignJob, error) {
	query := `SELECT ` + jobSelectList + `
		FROM campaign_jobs
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.getOne(ctx, query, campaignID)
}

// HasRunning reports whether any job for the campaign is currently running.
func (r *JobRepository) HasRunning(ctx context.Context, campaignID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM campaign_jobs WHERE campaign_id = $1 AND status = 'running')`,
		campaignID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check running job: %w", err)
	}
	return exists, nil
}

// Claim atomically transitions a pending job to running, provided no other
// job for the same campaign is running. The guard and the transition are one
// conditional UPDATE, so two workers observing the same pending job cannot
// both claim it. Returns domain.ErrConflict when the claim is lost.
//
// Two workers claiming different pending jobs of the same campaign can both
// pass the NOT EXISTS guard under read committed; the partial unique index
// on running jobs rejects the loser, which also surfaces as ErrConflict.
//
// The claim also bumps attempt_count and sets started_at on the first
// attempt only.
func (r *JobRepository) Claim(ctx context.Context, jobID string) (*domain.CampaignJob, error) {
	query := `
		UPDATE campaign_jobs
		SET status = 'running',
		    attempt_count = attempt_count + 1,
		    started_at = COALESCE(started_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_jobs other
			WHERE other.campaign_id = campaign_jobs.campaign_id
			  AND other.status = 'running'
		  )
		RETURNING ` + jobSelectList

	j, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s not claimable", domain.ErrConflict, jobID)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, fmt.Errorf("%w: job %s lost running slot for its campaign", domain.ErrConflict, jobID)
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// UpdateProgress persists the per-page counters so progress is observable
// and resumable even on crash.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, leadsProcessed, leadsWritten, totalPages int) error {
	query := `
		UPDATE campaign_jobs
		SET leads_processed = $2,
		    leads_written = $3,
		    total_pages = $4,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, jobID, leadsProcessed, leadsWritten, totalPages); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Close moves a running job into a terminal state. nextRunAt carries the
// backoff hint for retryable failures; lastError is surfaced to the status
// endpoint.
func (r *JobRepository) Close(ctx context.Context, jobID string, status domain.JobStatus, lastError *string, nextRunAt *time.Time) error {
	query := `
		UPDATE campaign_jobs
		SET status = $2,
		    last_error = $3,
		    next_run_at = $4,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'running'`
	if err := r.execExpectOneRow(ctx, query, jobID, status, lastError, nextRunAt); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("close job: %w", err)
	}
	return nil
}

// CancelOpenForCampaign marks every pending or running job of the campaign
// cancelled with the given reason. Idempotent: already-terminal jobs are
// untouched, and a second sweep affects zero rows.
func (r *JobRepository) CancelOpenForCampaign(ctx context.Context, campaignID, reason string) (int64, error) {
	query := `
		UPDATE campaign_jobs
		SET status = 'cancelled',
		    last_error = $2,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE campaign_id = $1 AND status IN ('pending', 'running')`

	result, err := r.db.ExecContext(ctx, query, campaignID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs: %w", err)
	}
	return result.RowsAffected()
}

// IsCancelled reports whether the job has been cancelled out from under a
// running worker. Checked at each page boundary.
func (r *JobRepository) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	var status domain.JobStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM campaign_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check job status: %w", err)
	}
	return status == domain.JobStatusCancelled, nil
}

// ResetStale returns jobs stuck in running past the threshold to pending.
// Handles workers that crashed after claiming a job.
func (r *JobRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE campaign_jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'running'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	return result.RowsAffected()
}

func (r *JobRepository) getOne(ctx context.Context, query string, arg any) (*domain.CampaignJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *JobRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.CampaignJob, error) {
	var j domain.CampaignJob
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.UserID, &j.JobType, &j.IdempotencyKey, &j.Status,
		&j.AttemptCount, &j.LeadsProcessed, &j.LeadsWritten, &j.TotalPages,
		&j.LastError, &j.StartedAt, &j.FinishedAt, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
