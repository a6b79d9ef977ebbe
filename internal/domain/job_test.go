package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusSucceeded, true},
		{JobStatusFailed, true},
		{JobStatusRateLimited, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestJobStatusRetryable(t *testing.T) {
	assert.True(t, JobStatusFailed.Retryable())
	assert.True(t, JobStatusRateLimited.Retryable())
	assert.False(t, JobStatusSucceeded.Retryable())
	assert.False(t, JobStatusCancelled.Retryable())
	assert.False(t, JobStatusRunning.Retryable())
	assert.False(t, JobStatusPending.Retryable())
}

func TestJobKeys(t *testing.T) {
	assert.Equal(t, "c-1:initial", InitialJobKey("c-1"))

	at := time.UnixMilli(1700000000000)
	assert.Equal(t, "c-1:retry:1700000000000", RetryJobKey("c-1", at))

	// Two retries at different instants never collide.
	assert.NotEqual(t, RetryJobKey("c-1", at), RetryJobKey("c-1", at.Add(time.Millisecond)))
}

func TestNewCampaignJob(t *testing.T) {
	job, err := NewCampaignJob("c-1", "u-1", InitialJobKey("c-1"))
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, JobTypeLeadFetch, job.JobType)
	assert.Equal(t, "c-1:initial", job.IdempotencyKey)
	assert.Zero(t, job.AttemptCount)

	_, err = NewCampaignJob("", "u-1", "key")
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = NewCampaignJob("c-1", "u-1", "")
	assert.ErrorIs(t, err, ErrInvalidJob)
}
