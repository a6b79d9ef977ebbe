package domain

import (
	"fmt"
	"strconv"
	"time"
)

// JobStatus represents the state of a campaign job.
//
// Transitions: pending -> running -> {succeeded, failed, rate_limited,
// cancelled}. failed and rate_limited may return to pending only through an
// explicit retry, which creates a new job with a fresh idempotency key.
// Terminal states never self-transition.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusRunning     JobStatus = "running"
	JobStatusSucceeded   JobStatus = "succeeded"
	JobStatusFailed      JobStatus = "failed"
	JobStatusRateLimited JobStatus = "rate_limited"
	JobStatusCancelled   JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusRateLimited:
		// Terminal for this job; a retry creates a new job.
		return true
	default:
		return false
	}
}

// Retryable reports whether a job in this status may be retried by the user.
func (s JobStatus) Retryable() bool {
	return s == JobStatusFailed || s == JobStatusRateLimited
}

// JobType distinguishes queued work kinds.
type JobType string

const (
	JobTypeLeadFetch JobType = "lead_fetch"
	JobTypeEmailSend JobType = "email_send"
)

// CampaignJob is one logical execution unit for a campaign. The persisted
// row is the source of truth for job state; the queue holds only its id.
type CampaignJob struct {
	ID             string     `db:"id"              json:"id"`
	CampaignID     string     `db:"campaign_id"     json:"campaign_id"`
	UserID         string     `db:"user_id"         json:"user_id"`
	JobType        JobType    `db:"job_type"        json:"job_type"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	Status         JobStatus  `db:"status"          json:"status"`
	AttemptCount   int        `db:"attempt_count"   json:"attempt_count"`
	LeadsProcessed int        `db:"leads_processed" json:"leads_processed"`
	LeadsWritten   int        `db:"leads_written"   json:"leads_written"`
	TotalPages     int        `db:"total_pages"     json:"total_pages"`
	LastError      *string    `db:"last_error"      json:"last_error,omitempty"`
	StartedAt      *time.Time `db:"started_at"      json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at"     json:"finished_at,omitempty"`
	NextRunAt      *time.Time `db:"next_run_at"     json:"next_run_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// InitialJobKey builds the idempotency key for the job created alongside a
// campaign. At most one initial job can ever exist per campaign.
func InitialJobKey(campaignID string) string {
	return campaignID + ":initial"
}

// RetryJobKey builds the idempotency key for an explicit retry. The token is
// the current unix-millisecond timestamp, which guarantees uniqueness across
// retries of the same campaign.
func RetryJobKey(campaignID string, at time.Time) string {
	return campaignID + ":retry:" + strconv.FormatInt(at.UnixMilli(), 10)
}

// NewCampaignJob creates a pending lead-fetch job for a campaign.
func NewCampaignJob(campaignID, userID, idempotencyKey string) (*CampaignJob, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("%w: campaign_id is required", ErrInvalidJob)
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrInvalidJob)
	}

	now := time.Now().UTC()
	return &CampaignJob{
		CampaignID:     campaignID,
		UserID:         userID,
		JobType:        JobTypeLeadFetch,
		IdempotencyKey: idempotencyKey,
		Status:         JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
