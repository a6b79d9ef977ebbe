package domain

import "time"

// AttemptStatus represents the outcome of one execution pass of a job.
type AttemptStatus string

const (
	AttemptStatusRunning   AttemptStatus = "running"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusCancelled AttemptStatus = "cancelled"
)

// IsClosed reports whether the attempt has reached a final state.
func (s AttemptStatus) IsClosed() bool {
	return s == AttemptStatusSucceeded || s == AttemptStatusFailed || s == AttemptStatusCancelled
}

// JobAttempt is one bounded execution pass of a CampaignJob. Attempt numbers
// strictly increase within a job and attempts are never re-opened after
// close.
type JobAttempt struct {
	ID            string        `db:"id"             json:"id"`
	JobID         string        `db:"job_id"         json:"job_id"`
	AttemptNumber int           `db:"attempt_number" json:"attempt_number"`
	Status        AttemptStatus `db:"status"         json:"status"`
	Error         *string       `db:"error"          json:"error,omitempty"`
	StartedAt     time.Time     `db:"started_at"     json:"started_at"`
	FinishedAt    *time.Time    `db:"finished_at"    json:"finished_at,omitempty"`
}
