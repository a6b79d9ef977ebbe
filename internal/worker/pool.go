// Package worker runs the queue-consuming worker pools for the pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/mail"
	"github.com/leadforge/pipeline/internal/metrics"
	"github.com/leadforge/pipeline/internal/queue"
)

const (
	defaultDequeueTimeout  = 2 * time.Second
	defaultPromoteInterval = time.Second
	defaultStaleJobAge     = 15 * time.Minute
	defaultReaperInterval  = time.Minute
	depthSampleInterval    = 10 * time.Second
)

// JobRunner executes one claimed lead-fetch job.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// StaleJobStore is the reaper's contract: reset jobs stuck running past a
// threshold back to pending.
type StaleJobStore interface {
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config holds pool tuning options.
type Config struct {
	LeadFetchConcurrency int
	EmailSendConcurrency int
	PromoteInterval      time.Duration
	StaleJobAge          time.Duration
	ReaperInterval       time.Duration
}

// Pool consumes the lead-fetch and email-send queues with independent
// concurrency, promotes delayed tasks, and reaps stale running jobs left by
// crashed workers.
type Pool struct {
	leadQueue  *queue.Queue
	emailQueue *queue.Queue
	runner     JobRunner
	sender     mail.Sender
	jobs       StaleJobStore
	metrics    *metrics.Metrics
	logger     logger.Logger
	cfg        Config

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// New creates a pool. Zero config fields fall back to defaults.
func New(leadQueue, emailQueue *queue.Queue, runner JobRunner, sender mail.Sender, jobs StaleJobStore, m *metrics.Metrics, log logger.Logger, cfg Config) *Pool {
	if cfg.LeadFetchConcurrency <= 0 {
		cfg.LeadFetchConcurrency = 4
	}
	if cfg.EmailSendConcurrency <= 0 {
		cfg.EmailSendConcurrency = 2
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = defaultPromoteInterval
	}
	if cfg.StaleJobAge <= 0 {
		cfg.StaleJobAge = defaultStaleJobAge
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = defaultReaperInterval
	}

	return &Pool{
		leadQueue:  leadQueue,
		emailQueue: emailQueue,
		runner:     runner,
		sender:     sender,
		jobs:       jobs,
		metrics:    m,
		logger:     log,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the consumer, promotion, reaper, and depth-sampling
// goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.LeadFetchConcurrency; i++ {
		p.wg.Add(1)
		go p.consume(ctx, p.leadQueue, p.handleLeadFetch)
	}
	for i := 0; i < p.cfg.EmailSendConcurrency; i++ {
		p.wg.Add(1)
		go p.consume(ctx, p.emailQueue, p.handleEmailSend)
	}

	p.wg.Add(1)
	go p.runPromotion(ctx)

	p.wg.Add(1)
	go p.runReaper(ctx)

	p.wg.Add(1)
	go p.sampleDepth(ctx)

	p.logger.Info("worker pool started",
		logger.Int("lead_fetch_concurrency", p.cfg.LeadFetchConcurrency),
		logger.Int("email_send_concurrency", p.cfg.EmailSendConcurrency),
	)
}

// Stop waits for in-flight tasks to finish. Runner page loops observe the
// shutdown through their context.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) consume(ctx context.Context, q *queue.Queue, handle func(context.Context, *queue.Task) error) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := q.Dequeue(ctx, defaultDequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", logger.Error(err))
			continue
		}
		if task == nil {
			continue
		}

		if err := handle(ctx, task); err != nil {
			p.handleTaskError(ctx, q, task, err)
			continue
		}
		p.metrics.TasksConsumed.WithLabelValues(string(task.Kind), "ok").Inc()
	}
}

func (p *Pool) handleLeadFetch(ctx context.Context, task *queue.Task) error {
	err := p.runner.Run(ctx, task.JobID)
	if errors.Is(err, domain.ErrConflict) {
		// Another worker holds the campaign; the job row keeps its state and
		// the user can retry. Not a task failure.
		p.metrics.TasksConsumed.WithLabelValues(string(task.Kind), "conflict").Inc()
		return nil
	}
	return err
}

func (p *Pool) handleEmailSend(ctx context.Context, task *queue.Task) error {
	var msg mail.Message
	if err := json.Unmarshal(task.Payload, &msg); err != nil {
		p.logger.Error("undecodable email task dropped",
			logger.String("task_id", task.ID),
			logger.Error(err),
		)
		return nil
	}
	return p.sender.Send(ctx, msg)
}

// handleTaskError applies the queue-layer retry policy. Lead-fetch tasks
// carry a single attempt, so their failures land here only for logging; the
// runner already recorded the job outcome.
func (p *Pool) handleTaskError(ctx context.Context, q *queue.Queue, task *queue.Task, err error) {
	requeued, retryErr := q.RetryLater(ctx, *task)
	if retryErr != nil {
		p.logger.Error("task retry enqueue failed",
			logger.String("task_id", task.ID),
			logger.Error(retryErr),
		)
	}

	outcome := "failed"
	if requeued {
		outcome = "retried"
	}
	p.metrics.TasksConsumed.WithLabelValues(string(task.Kind), outcome).Inc()
	p.logger.Warn("task failed",
		logger.String("queue", string(task.Kind)),
		logger.String("task_id", task.ID),
		logger.String("campaign_id", task.CampaignID),
		logger.Int("attempt", task.Attempt),
		logger.Bool("requeued", requeued),
		logger.Error(err),
	)
}

func (p *Pool) runPromotion(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, q := range []*queue.Queue{p.leadQueue, p.emailQueue} {
				if _, err := q.PromoteDue(ctx, time.Now()); err != nil {
					p.logger.Error("delayed task promotion failed", logger.Error(err))
				}
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runReaper resets jobs stuck in running past the stale threshold back to
// pending. Handles jobs claimed by a worker that crashed before finishing.
func (p *Pool) runReaper(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := p.jobs.ResetStale(ctx, p.cfg.StaleJobAge)
			if err != nil {
				p.logger.Error("stale job reap failed", logger.Error(err))
			} else if reset > 0 {
				p.logger.Warn("recovered stale jobs", logger.Int64("reset", reset))
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) sampleDepth(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(depthSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for name, q := range map[string]*queue.Queue{
				string(queue.LeadFetch): p.leadQueue,
				string(queue.EmailSend): p.emailQueue,
			} {
				waiting, delayed, err := q.Depth(ctx)
				if err != nil {
					continue
				}
				p.metrics.QueueDepth.WithLabelValues(name, "waiting").Set(float64(waiting))
				p.metrics.QueueDepth.WithLabelValues(name, "delayed").Set(float64(delayed))
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
