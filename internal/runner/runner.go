// Package runner executes campaign jobs: it claims a job, pages the lead
// provider under rate-limit admission, sanitizes and deduplicates records,
// writes leads to storage and the external sheet, and records terminal state
// in the job and attempt rows.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/metrics"
	"github.com/leadforge/pipeline/internal/provider"
	"github.com/leadforge/pipeline/internal/ratelimit"
	"github.com/leadforge/pipeline/internal/sanitize"
	"github.com/leadforge/pipeline/internal/sheet"
)

// errCancelled aborts the page loop when a pause/delete sweep is observed
// mid-run.
var errCancelled = errors.New("job cancelled")

// JobStore is the slice of job persistence the runner needs.
type JobStore interface {
	Claim(ctx context.Context, jobID string) (*domain.CampaignJob, error)
	UpdateProgress(ctx context.Context, jobID string, leadsProcessed, leadsWritten, totalPages int) error
	Close(ctx context.Context, jobID string, status domain.JobStatus, lastError *string, nextRunAt *time.Time) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// AttemptStore is the attempt ledger contract.
type AttemptStore interface {
	Open(ctx context.Context, jobID string) (*domain.JobAttempt, error)
	Close(ctx context.Context, attemptID string, status domain.AttemptStatus, errMsg *string) error
}

// LeadStore persists deduplicated leads.
type LeadStore interface {
	ExistingEmails(ctx context.Context, campaignID string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, leads []domain.Lead) (int, error)
}

// CampaignStore reads campaign configuration and the pause flag.
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	IsActive(ctx context.Context, id string) (bool, error)
}

// Runner processes one queued lead-fetch task at a time. Multiple runner
// workers may execute concurrently; mutual exclusion per campaign is
// enforced by the atomic job claim, not by the runner itself.
type Runner struct {
	jobs      JobStore
	attempts  AttemptStore
	leads     LeadStore
	campaigns CampaignStore
	searcher  provider.Searcher
	sheets    sheet.Appender
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    logger.Logger
	backoff   domain.BackoffPolicy
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Jobs      JobStore
	Attempts  AttemptStore
	Leads     LeadStore
	Campaigns CampaignStore
	Searcher  provider.Searcher
	Sheets    sheet.Appender
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// New creates a runner with the default job backoff policy.
func New(deps Deps) *Runner {
	return &Runner{
		jobs:      deps.Jobs,
		attempts:  deps.Attempts,
		leads:     deps.Leads,
		campaigns: deps.Campaigns,
		searcher:  deps.Searcher,
		sheets:    deps.Sheets,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		backoff:   domain.DefaultJobBackoff(),
	}
}

// Run executes one pass of the given job. It returns domain.ErrConflict
// without side effects when another job for the campaign is already running.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.jobs.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			r.logger.Warn("job claim lost", logger.String("job_id", jobID))
		}
		return err
	}
	r.metrics.JobsStarted.Inc()

	log := r.logger.With(
		logger.String("job_id", job.ID),
		logger.String("campaign_id", job.CampaignID),
		logger.Int("attempt", job.AttemptCount),
	)
	log.Info("job started")

	attempt, err := r.attempts.Open(ctx, job.ID)
	if err != nil {
		// Could not open the ledger row; release the job as failed so it
		// stays retryable.
		msg := fmt.Sprintf("open attempt: %v", err)
		_ = r.jobs.Close(ctx, job.ID, domain.JobStatusFailed, &msg, nil)
		return fmt.Errorf("open attempt: %w", err)
	}

	execErr := r.execute(ctx, job, log)
	return r.finish(ctx, job, attempt, execErr, log)
}

// finish closes the attempt and the job consistently with the execution
// outcome.
func (r *Runner) finish(ctx context.Context, job *domain.CampaignJob, attempt *domain.JobAttempt, execErr error, log logger.Logger) error {
	switch {
	case execErr == nil:
		if err := r.attempts.Close(ctx, attempt.ID, domain.AttemptStatusSucceeded, nil); err != nil {
			log.Error("close attempt failed", logger.Error(err))
		}
		if err := r.jobs.Close(ctx, job.ID, domain.JobStatusSucceeded, nil, nil); err != nil {
			return fmt.Errorf("close job: %w", err)
		}
		r.metrics.JobsCompleted.WithLabelValues(string(domain.JobStatusSucceeded)).Inc()
		log.Info("job succeeded")
		return nil

	case errors.Is(execErr, errCancelled):
		reason := execErr.Error()
		if err := r.attempts.Close(ctx, attempt.ID, domain.AttemptStatusCancelled, &reason); err != nil {
			log.Error("close attempt failed", logger.Error(err))
		}
		// The cancellation sweep usually closed the job already; a zero-row
		// close here just means the sweep won.
		if err := r.jobs.Close(ctx, job.ID, domain.JobStatusCancelled, &reason, nil); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error("close job failed", logger.Error(err))
		}
		r.metrics.JobsCompleted.WithLabelValues(string(domain.JobStatusCancelled)).Inc()
		log.Info("job cancelled")
		return nil

	case errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded):
		// Worker shutdown mid-run. Close the ledger row; the job stays
		// running until the stale reaper resets it to pending.
		msg := "worker shutdown during run"
		if err := r.attempts.Close(ctx, attempt.ID, domain.AttemptStatusFailed, &msg); err != nil {
			log.Error("close attempt failed", logger.Error(err))
		}
		return execErr

	default:
		msg := execErr.Error()
		if err := r.attempts.Close(ctx, attempt.ID, domain.AttemptStatusFailed, &msg); err != nil {
			log.Error("close attempt failed", logger.Error(err))
		}

		status := domain.JobStatusFailed
		var nextRunAt *time.Time
		if domain.IsRetryable(execErr) {
			if errors.Is(execErr, domain.ErrRateLimited) || errors.Is(execErr, domain.ErrTimeout) {
				status = domain.JobStatusRateLimited
			}
			next := time.Now().UTC().Add(r.backoff.Delay(job.AttemptCount))
			nextRunAt = &next
		}

		if err := r.jobs.Close(ctx, job.ID, status, &msg, nextRunAt); err != nil {
			return fmt.Errorf("close job: %w", err)
		}
		r.metrics.JobsCompleted.WithLabelValues(string(status)).Inc()
		log.Warn("job failed",
			logger.String("status", string(status)),
			logger.Bool("retryable", domain.IsRetryable(execErr)),
			logger.Error(execErr),
		)
		return execErr
	}
}

// execute runs the page loop. Counters resume from the job row so a
// reclaimed job continues where the previous pass left off.
func (r *Runner) execute(ctx context.Context, job *domain.CampaignJob, log logger.Logger) error {
	campaign, err := r.campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	seen, err := r.leads.ExistingEmails(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("load existing emails: %w", err)
	}

	it := provider.NewPageIterator(
		r.searcher,
		provider.FiltersFromCampaign(campaign),
		campaign.EffectivePageSize(),
	)

	processed := job.LeadsProcessed
	written := job.LeadsWritten
	pages := job.TotalPages
	maxDepth := campaign.MaxDepth()

	for {
		// Cancellation is cooperative: observed at each page boundary, never
		// mid-provider-call.
		if err := r.checkCancelled(ctx, job, campaign); err != nil {
			return err
		}
		if written >= campaign.MaxLeads {
			break
		}
		if maxDepth > 0 && pages >= maxDepth {
			log.Info("depth limit reached", logger.Int("pages", pages))
			break
		}

		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}

		page, err := it.Next(ctx)
		if err != nil {
			r.metrics.ProviderCalls.WithLabelValues("error").Inc()
			return err
		}
		r.metrics.ProviderCalls.WithLabelValues("ok").Inc()
		if page == nil {
			break
		}
		pages++

		batch := r.buildBatch(campaign, job, page.Records, seen, campaign.MaxLeads-written)
		processed += len(page.Records)
		r.metrics.LeadsSeen.Add(float64(len(page.Records)))

		if len(batch) > 0 {
			inserted, err := r.leads.InsertBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("persist leads: %w", err)
			}
			written += inserted
			r.metrics.LeadsWritten.Add(float64(inserted))

			rows := make([][]string, 0, len(batch))
			for i := range batch {
				rows = append(rows, batch[i].SheetRow())
			}
			if err := r.sheets.AppendRows(ctx, campaign.SheetID, rows); err != nil {
				// Persist what we know before aborting: the counters surface
				// the lead/sheet divergence instead of hiding it.
				if upErr := r.jobs.UpdateProgress(ctx, job.ID, processed, written, pages); upErr != nil {
					log.Error("persist progress failed", logger.Error(upErr))
				}
				return err
			}
		}

		if err := r.jobs.UpdateProgress(ctx, job.ID, processed, written, pages); err != nil {
			return fmt.Errorf("persist progress: %w", err)
		}
		r.metrics.PagesFetched.Inc()

		log.Debug("page processed",
			logger.Int("page", pages),
			logger.Int("records", len(page.Records)),
			logger.Int("written", written),
		)

		if it.Exhausted() {
			break
		}
	}

	job.LeadsProcessed = processed
	job.LeadsWritten = written
	job.TotalPages = pages
	return nil
}

// buildBatch sanitizes and deduplicates one page of records, bounded by the
// remaining lead budget.
func (r *Runner) buildBatch(campaign *domain.Campaign, job *domain.CampaignJob, records []provider.Record, seen map[string]struct{}, budget int) []domain.Lead {
	batch := make([]domain.Lead, 0, len(records))
	for _, rec := range records {
		if len(batch) >= budget {
			break
		}
		email := sanitize.Email(rec.Email)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		batch = append(batch, domain.Lead{
			CampaignID:  campaign.ID,
			UserID:      job.UserID,
			Email:       email,
			FirstName:   rec.FirstName,
			LastName:    rec.LastName,
			Company:     rec.Company,
			Title:       rec.Title,
			Location:    rec.Location,
			EmailStatus: "unverified",
		})
	}
	return batch
}

func (r *Runner) checkCancelled(ctx context.Context, job *domain.CampaignJob, campaign *domain.Campaign) error {
	cancelled, err := r.jobs.IsCancelled(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("check job cancellation: %w", err)
	}
	if cancelled {
		return fmt.Errorf("%w: job marked cancelled", errCancelled)
	}

	active, err := r.campaigns.IsActive(ctx, campaign.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: campaign deleted", errCancelled)
		}
		return fmt.Errorf("check campaign active: %w", err)
	}
	if !active {
		return fmt.Errorf("%w: campaign paused", errCancelled)
	}
	return nil
}
