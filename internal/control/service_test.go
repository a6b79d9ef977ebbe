package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/queue"
)

type fakeCampaignStore struct {
	campaigns map[string]*domain.Campaign
}

func (f *fakeCampaignStore) Create(_ context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = "c-1"
	}
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignStore) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignStore) SetActive(_ context.Context, id string, active bool) (bool, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	if c.IsActive == active {
		return false, nil
	}
	c.IsActive = active
	return true, nil
}

func (f *fakeCampaignStore) Delete(_ context.Context, id string) error {
	if _, ok := f.campaigns[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.campaigns, id)
	return nil
}

type fakeJobStore struct {
	jobs       []*domain.CampaignJob
	hasRunning bool
	cancelled  []string
}

func (f *fakeJobStore) Create(_ context.Context, j *domain.CampaignJob) error {
	for _, existing := range f.jobs {
		if existing.IdempotencyKey == j.IdempotencyKey {
			return domain.ErrConflict
		}
	}
	if j.ID == "" {
		j.ID = "j-" + j.IdempotencyKey
	}
	f.jobs = append(f.jobs, j)
	return nil
}

func (f *fakeJobStore) LatestForCampaign(_ context.Context, campaignID string) (*domain.CampaignJob, error) {
	for i := len(f.jobs) - 1; i >= 0; i-- {
		if f.jobs[i].CampaignID == campaignID {
			return f.jobs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobStore) HasRunning(_ context.Context, _ string) (bool, error) {
	return f.hasRunning, nil
}

func (f *fakeJobStore) CancelOpenForCampaign(_ context.Context, campaignID, reason string) (int64, error) {
	f.cancelled = append(f.cancelled, reason)
	var n int64
	for _, j := range f.jobs {
		if j.CampaignID == campaignID && !j.Status.IsTerminal() {
			j.Status = domain.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

type fakeAttemptStore struct {
	latest    *domain.JobAttempt
	cancelled int
}

func (f *fakeAttemptStore) Latest(_ context.Context, _ string) (*domain.JobAttempt, error) {
	if f.latest == nil {
		return nil, domain.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeAttemptStore) CancelOpenForCampaign(_ context.Context, _, _ string) (int64, error) {
	f.cancelled++
	return 0, nil
}

type fakeLeadStore struct {
	count int64
}

func (f *fakeLeadStore) CountForCampaign(_ context.Context, _ string) (int64, error) {
	return f.count, nil
}

type fakeQueue struct {
	enqueued []queue.Task
	delays   []time.Duration
	purged   []string
}

func (f *fakeQueue) Enqueue(_ context.Context, task queue.Task, delay time.Duration) error {
	f.enqueued = append(f.enqueued, task)
	f.delays = append(f.delays, delay)
	return nil
}

func (f *fakeQueue) RemovePendingForCampaign(_ context.Context, campaignID string) (int, error) {
	f.purged = append(f.purged, campaignID)
	return 1, nil
}

type fixture struct {
	campaigns  *fakeCampaignStore
	jobs       *fakeJobStore
	attempts   *fakeAttemptStore
	leads      *fakeLeadStore
	leadQueue  *fakeQueue
	emailQueue *fakeQueue
	svc        *Service
}

func newFixture() *fixture {
	f := &fixture{
		campaigns:  &fakeCampaignStore{campaigns: map[string]*domain.Campaign{}},
		jobs:       &fakeJobStore{},
		attempts:   &fakeAttemptStore{},
		leads:      &fakeLeadStore{},
		leadQueue:  &fakeQueue{},
		emailQueue: &fakeQueue{},
	}
	f.svc = NewService(Deps{
		Campaigns:  f.campaigns,
		Jobs:       f.jobs,
		Attempts:   f.attempts,
		Leads:      f.leads,
		LeadQueue:  f.leadQueue,
		EmailQueue: f.emailQueue,
		Logger:     logger.NewNopLogger(),
	})
	return f
}

func (f *fixture) seedCampaign(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := domain.NewCampaign("u-1", "outreach", "sheet-1")
	require.NoError(t, err)
	c.ID = "c-1"
	f.campaigns.campaigns[c.ID] = c
	return c
}

func TestCreateCampaignEnqueuesInitialJob(t *testing.T) {
	f := newFixture()

	c, err := domain.NewCampaign("u-1", "outreach", "sheet-1")
	require.NoError(t, err)

	job, err := f.svc.CreateCampaign(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, c.ID, job.CampaignID)
	assert.Equal(t, domain.InitialJobKey(c.ID), job.IdempotencyKey)
	require.Len(t, f.leadQueue.enqueued, 1)
	assert.Equal(t, job.ID, f.leadQueue.enqueued[0].JobID)
	assert.Equal(t, time.Duration(0), f.leadQueue.delays[0])
}

func TestCreateCampaignDuplicateInitialJob(t *testing.T) {
	f := newFixture()
	c := f.seedCampaign(t)

	first, err := domain.NewCampaignJob(c.ID, c.UserID, domain.InitialJobKey(c.ID))
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(context.Background(), first))

	// A replayed creation request collides on the initial idempotency key.
	_, err = f.svc.CreateCampaign(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.leadQueue.enqueued)
}

func TestRetryCreatesFreshJob(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	failed, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	failed.Status = domain.JobStatusFailed
	require.NoError(t, f.jobs.Create(context.Background(), failed))

	job, err := f.svc.Retry(context.Background(), "c-1")
	require.NoError(t, err)

	assert.NotEqual(t, failed.IdempotencyKey, job.IdempotencyKey)
	assert.Contains(t, job.IdempotencyKey, ":retry:")
	assert.Equal(t, domain.JobStatusPending, job.Status)
	require.Len(t, f.leadQueue.enqueued, 1)
	assert.Equal(t, time.Duration(0), f.leadQueue.delays[0])
}

func TestRetryWhileRunningConflicts(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)
	f.jobs.hasRunning = true

	_, err := f.svc.Retry(context.Background(), "c-1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	// No job created, nothing enqueued.
	assert.Empty(t, f.jobs.jobs)
	assert.Empty(t, f.leadQueue.enqueued)
}

func TestRetryUnknownCampaign(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetryHonorsBackoffHint(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	failed, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	failed.Status = domain.JobStatusRateLimited
	next := time.Now().Add(time.Minute)
	failed.NextRunAt = &next
	require.NoError(t, f.jobs.Create(context.Background(), failed))

	_, err = f.svc.Retry(context.Background(), "c-1")
	require.NoError(t, err)

	require.Len(t, f.leadQueue.delays, 1)
	assert.Greater(t, f.leadQueue.delays[0], 50*time.Second)
	assert.LessOrEqual(t, f.leadQueue.delays[0], time.Minute)
}

func TestRetryIgnoresElapsedBackoffHint(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	failed, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	failed.Status = domain.JobStatusRateLimited
	past := time.Now().Add(-time.Minute)
	failed.NextRunAt = &past
	require.NoError(t, f.jobs.Create(context.Background(), failed))

	_, err = f.svc.Retry(context.Background(), "c-1")
	require.NoError(t, err)

	require.Len(t, f.leadQueue.delays, 1)
	assert.Equal(t, time.Duration(0), f.leadQueue.delays[0])
}

func TestPauseSweepsJobsAndQueues(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	pending, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(context.Background(), pending))

	require.NoError(t, f.svc.Pause(context.Background(), "c-1"))

	assert.False(t, f.campaigns.campaigns["c-1"].IsActive)
	assert.Equal(t, domain.JobStatusCancelled, pending.Status)
	assert.Equal(t, []string{"campaign paused"}, f.jobs.cancelled)
	assert.Equal(t, 1, f.attempts.cancelled)
	assert.Equal(t, []string{"c-1"}, f.leadQueue.purged)
	assert.Equal(t, []string{"c-1"}, f.emailQueue.purged)
}

func TestPauseIsIdempotent(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	require.NoError(t, f.svc.Pause(context.Background(), "c-1"))
	require.NoError(t, f.svc.Pause(context.Background(), "c-1"))

	// The sweep runs both times; the second pass simply finds nothing open.
	assert.Len(t, f.jobs.cancelled, 2)
	assert.False(t, f.campaigns.campaigns["c-1"].IsActive)
}

func TestResumeDoesNotEnqueue(t *testing.T) {
	f := newFixture()
	c := f.seedCampaign(t)
	c.IsActive = false

	require.NoError(t, f.svc.Resume(context.Background(), "c-1"))

	assert.True(t, c.IsActive)
	assert.Empty(t, f.leadQueue.enqueued)
}

func TestDeleteSweepsThenRemoves(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	running, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	running.Status = domain.JobStatusRunning
	require.NoError(t, f.jobs.Create(context.Background(), running))

	require.NoError(t, f.svc.Delete(context.Background(), "c-1"))

	assert.Empty(t, f.campaigns.campaigns)
	assert.Equal(t, domain.JobStatusCancelled, running.Status)
	assert.Equal(t, []string{"campaign deleted"}, f.jobs.cancelled)
	assert.Equal(t, []string{"c-1"}, f.leadQueue.purged)
}

func TestDeleteUnknownCampaign(t *testing.T) {
	f := newFixture()

	err := f.svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetStatus(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)
	f.leads.count = 42

	job, err := domain.NewCampaignJob("c-1", "u-1", domain.InitialJobKey("c-1"))
	require.NoError(t, err)
	job.Status = domain.JobStatusSucceeded
	require.NoError(t, f.jobs.Create(context.Background(), job))

	f.attempts.latest = &domain.JobAttempt{
		ID:            "a-1",
		JobID:         job.ID,
		AttemptNumber: 1,
		Status:        domain.AttemptStatusSucceeded,
	}

	st, err := f.svc.GetStatus(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, "c-1", st.Campaign.ID)
	require.NotNil(t, st.LatestJob)
	assert.Equal(t, domain.JobStatusSucceeded, st.LatestJob.Status)
	require.NotNil(t, st.LatestAttempt)
	assert.Equal(t, 1, st.LatestAttempt.AttemptNumber)
	assert.Equal(t, int64(42), st.TotalLeads)
}

func TestGetStatusNoJobsYet(t *testing.T) {
	f := newFixture()
	f.seedCampaign(t)

	st, err := f.svc.GetStatus(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Nil(t, st.LatestJob)
	assert.Nil(t, st.LatestAttempt)
	assert.Zero(t, st.TotalLeads)
}
