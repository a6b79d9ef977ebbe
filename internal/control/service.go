// Package control implements the user-facing job operations: campaign
// creation, retry, pause, delete, and the status projection polled by the
// UI.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/queue"
)

// CampaignStore is the campaign persistence the service needs.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	SetActive(ctx context.Context, id string, active bool) (bool, error)
	Delete(ctx context.Context, id string) error
}

// JobStore is the job persistence the service needs.
type JobStore interface {
	Create(ctx context.Context, j *domain.CampaignJob) error
	LatestForCampaign(ctx context.Context, campaignID string) (*domain.CampaignJob, error)
	HasRunning(ctx context.Context, campaignID string) (bool, error)
	CancelOpenForCampaign(ctx context.Context, campaignID, reason string) (int64, error)
}

// AttemptStore reads and sweeps the attempt ledger.
type AttemptStore interface {
	Latest(ctx context.Context, jobID string) (*domain.JobAttempt, error)
	CancelOpenForCampaign(ctx context.Context, campaignID, reason string) (int64, error)
}

// LeadStore supplies the live lead count for the status projection.
type LeadStore interface {
	CountForCampaign(ctx context.Context, campaignID string) (int64, error)
}

// TaskQueue is the queue surface the service needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task, delay time.Duration) error
	RemovePendingForCampaign(ctx context.Context, campaignID string) (int, error)
}

// Service wires the control operations over storage and the queues.
type Service struct {
	campaigns  CampaignStore
	jobs       JobStore
	attempts   AttemptStore
	leads      LeadStore
	leadQueue  TaskQueue
	emailQueue TaskQueue
	logger     logger.Logger
}

// Deps bundles the service's collaborators.
type Deps struct {
	Campaigns  CampaignStore
	Jobs       JobStore
	Attempts   AttemptStore
	Leads      LeadStore
	LeadQueue  TaskQueue
	EmailQueue TaskQueue
	Logger     logger.Logger
}

// NewService creates the control service.
func NewService(deps Deps) *Service {
	return &Service{
		campaigns:  deps.Campaigns,
		jobs:       deps.Jobs,
		attempts:   deps.Attempts,
		leads:      deps.Leads,
		leadQueue:  deps.LeadQueue,
		emailQueue: deps.EmailQueue,
		logger:     deps.Logger,
	}
}

// CreateCampaign persists the campaign, creates its initial job, and
// enqueues it. The initial idempotency key means a retried creation request
// cannot spawn a second job.
func (s *Service) CreateCampaign(ctx context.Context, c *domain.Campaign) (*domain.CampaignJob, error) {
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}

	job, err := domain.NewCampaignJob(c.ID, c.UserID, domain.InitialJobKey(c.ID))
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.EnqueueJob(ctx, job, 0); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created",
		logger.String("campaign_id", c.ID),
		logger.String("job_id", job.ID),
	)
	return job, nil
}

// EnqueueJob places a lead-fetch task for the job on the queue.
func (s *Service) EnqueueJob(ctx context.Context, job *domain.CampaignJob, delay time.Duration) error {
	task := queue.NewLeadFetchTask(job.CampaignID, job.ID, job.UserID)
	if err := s.leadQueue.Enqueue(ctx, task, delay); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Retry creates and enqueues a fresh job for the campaign. Returns
// domain.ErrConflict while a job is running. The new job honors the failed
// job's backoff hint by delaying until its next_run_at when that is still in
// the future.
func (s *Service) Retry(ctx context.Context, campaignID string) (*domain.CampaignJob, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	running, err := s.jobs.HasRunning(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("%w: campaign %s has a running job", domain.ErrConflict, campaignID)
	}

	var delay time.Duration
	latest, err := s.jobs.LatestForCampaign(ctx, campaignID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if latest != nil && latest.NextRunAt != nil {
		if until := time.Until(*latest.NextRunAt); until > 0 {
			delay = until
		}
	}

	job, err := domain.NewCampaignJob(campaignID, campaign.UserID, domain.RetryJobKey(campaignID, time.Now()))
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.EnqueueJob(ctx, job, delay); err != nil {
		return nil, err
	}

	s.logger.Info("retry scheduled",
		logger.String("campaign_id", campaignID),
		logger.String("job_id", job.ID),
		logger.Duration("delay", delay),
	)
	return job, nil
}

// Pause marks the campaign inactive and cancels its in-flight and queued
// work. Calling it twice is a no-op the second time.
func (s *Service) Pause(ctx context.Context, campaignID string) error {
	changed, err := s.campaigns.SetActive(ctx, campaignID, false)
	if err != nil {
		return err
	}
	if err := s.cancelSweep(ctx, campaignID, "campaign paused"); err != nil {
		return err
	}
	if changed {
		s.logger.Info("campaign paused", logger.String("campaign_id", campaignID))
	}
	return nil
}

// Resume reactivates a paused campaign. It does not re-enqueue work; the
// user triggers that explicitly through Retry.
func (s *Service) Resume(ctx context.Context, campaignID string) error {
	if _, err := s.campaigns.SetActive(ctx, campaignID, true); err != nil {
		return err
	}
	return nil
}

// Delete runs the same cancellation sweep as Pause, then removes the
// campaign; leads, jobs, and attempts cascade in storage.
func (s *Service) Delete(ctx context.Context, campaignID string) error {
	if err := s.cancelSweep(ctx, campaignID, "campaign deleted"); err != nil {
		return err
	}
	if err := s.campaigns.Delete(ctx, campaignID); err != nil {
		return err
	}
	s.logger.Info("campaign deleted", logger.String("campaign_id", campaignID))
	return nil
}

// cancelSweep cancels open jobs and attempts and purges queued tasks so a
// stale task cannot start after the user paused.
func (s *Service) cancelSweep(ctx context.Context, campaignID, reason string) error {
	jobsCancelled, err := s.jobs.CancelOpenForCampaign(ctx, campaignID, reason)
	if err != nil {
		return err
	}
	attemptsCancelled, err := s.attempts.CancelOpenForCampaign(ctx, campaignID, reason)
	if err != nil {
		return err
	}

	leadRemoved, err := s.leadQueue.RemovePendingForCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	emailRemoved, err := s.emailQueue.RemovePendingForCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	if jobsCancelled > 0 || leadRemoved > 0 || emailRemoved > 0 {
		s.logger.Info("cancellation sweep",
			logger.String("campaign_id", campaignID),
			logger.String("reason", reason),
			logger.Int64("jobs_cancelled", jobsCancelled),
			logger.Int64("attempts_cancelled", attemptsCancelled),
			logger.Int("tasks_purged", leadRemoved+emailRemoved),
		)
	}
	return nil
}

// Status is the polling projection: the campaign, its latest job and
// attempt, and the live lead count. Read-only and cheap.
type Status struct {
	Campaign      *domain.Campaign    `json:"campaign"`
	LatestJob     *domain.CampaignJob `json:"latest_job,omitempty"`
	LatestAttempt *domain.JobAttempt  `json:"latest_attempt,omitempty"`
	TotalLeads    int64               `json:"total_leads"`
}

// GetStatus builds the status projection. Never mutates state.
func (s *Service) GetStatus(ctx context.Context, campaignID string) (*Status, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	st := &Status{Campaign: campaign}

	job, err := s.jobs.LatestForCampaign(ctx, campaignID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if job != nil {
		st.LatestJob = job
		attempt, err := s.attempts.Latest(ctx, job.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		st.LatestAttempt = attempt
	}

	total, err := s.leads.CountForCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	st.TotalLeads = total
	return st, nil
}
