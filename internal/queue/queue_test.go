package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
)

func newTestQueue(t *testing.T, name Name) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, name, logger.NewNopLogger())
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t, LeadFetch)
	ctx := context.Background()

	task := NewLeadFetchTask("c-1", "j-1", "u-1")
	require.NoError(t, q.Enqueue(ctx, task, 0))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, LeadFetch, got.Kind)
	assert.Equal(t, "c-1", got.CampaignID)
	assert.Equal(t, "j-1", got.JobID)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, 1, got.MaxAttempts)
}

func TestDequeueTimeoutReturnsNil(t *testing.T) {
	q := newTestQueue(t, LeadFetch)

	got, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeueOrderIsFIFO(t *testing.T) {
	q := newTestQueue(t, LeadFetch)
	ctx := context.Background()

	first := NewLeadFetchTask("c-1", "j-1", "u-1")
	second := NewLeadFetchTask("c-1", "j-2", "u-1")
	require.NoError(t, q.Enqueue(ctx, first, 0))
	require.NoError(t, q.Enqueue(ctx, second, 0))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestDelayedTaskPromotion(t *testing.T) {
	q := newTestQueue(t, EmailSend)
	ctx := context.Background()

	task := NewEmailSendTask("c-1", "u-1", nil)
	require.NoError(t, q.Enqueue(ctx, task, time.Hour))

	waiting, delayed, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), waiting)
	assert.Equal(t, int64(1), delayed)

	// Not due yet.
	promoted, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted)

	promoted, err = q.PromoteDue(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestRetryLaterRequeuesWithBackoff(t *testing.T) {
	q := newTestQueue(t, EmailSend)
	ctx := context.Background()

	task := NewEmailSendTask("c-1", "u-1", nil)
	require.Equal(t, 3, task.MaxAttempts)

	requeued, err := q.RetryLater(ctx, task)
	require.NoError(t, err)
	assert.True(t, requeued)

	// 5s base backoff parks it in the delayed set with the attempt bumped.
	waiting, delayed, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), waiting)
	assert.Equal(t, int64(1), delayed)

	promoted, err := q.PromoteDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempt)
}

func TestRetryLaterExhaustsAttempts(t *testing.T) {
	q := newTestQueue(t, EmailSend)
	ctx := context.Background()

	task := NewEmailSendTask("c-1", "u-1", nil)
	task.Attempt = task.MaxAttempts

	requeued, err := q.RetryLater(ctx, task)
	require.NoError(t, err)
	assert.False(t, requeued)

	waiting, delayed, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, waiting)
	assert.Zero(t, delayed)
}

func TestRemovePendingForCampaign(t *testing.T) {
	q := newTestQueue(t, LeadFetch)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewLeadFetchTask("c-1", "j-1", "u-1"), 0))
	require.NoError(t, q.Enqueue(ctx, NewLeadFetchTask("c-1", "j-2", "u-1"), time.Hour))
	keep := NewLeadFetchTask("c-2", "j-3", "u-2")
	require.NoError(t, q.Enqueue(ctx, keep, 0))

	removed, err := q.RemovePendingForCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	waiting, delayed, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)
	assert.Zero(t, delayed)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, keep.ID, got.ID)
}

func TestRemovePendingForCampaignNoMatches(t *testing.T) {
	q := newTestQueue(t, LeadFetch)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewLeadFetchTask("c-2", "j-1", "u-1"), 0))

	removed, err := q.RemovePendingForCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEmailTaskCarriesBackoffPolicy(t *testing.T) {
	task := NewEmailSendTask("c-1", "u-1", nil)
	assert.Equal(t, domain.DefaultEmailBackoff(), task.Backoff)
	assert.Equal(t, 5*time.Second, task.Backoff.Delay(1))
	assert.Equal(t, 10*time.Second, task.Backoff.Delay(2))
}
