// Package queue implements the durable Redis-backed task queue feeding the
// worker pools. Tasks are JSON blobs on a waiting list, with a sorted set
// holding delayed tasks scored by ready-time. The queue holds only job ids;
// the persisted CampaignJob row remains the source of truth for job state.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/pipeline/internal/domain"
	"github.com/leadforge/pipeline/internal/logger"
)

// Name identifies one of the two named queues.
type Name string

const (
	// LeadFetch tasks run the campaign job runner. Single attempt at the
	// queue layer: the runner manages its own retries through CampaignJob.
	LeadFetch Name = "lead_fetch"

	// EmailSend tasks dispatch to the mail sender, with automatic
	// exponential-backoff retries at the queue layer.
	EmailSend Name = "email_send"
)

// Task is the unit of queued work. The payload carries ids, never state.
type Task struct {
	ID          string               `json:"task_id"`
	Kind        Name                 `json:"kind"`
	CampaignID  string               `json:"campaign_id"`
	JobID       string               `json:"job_id"`
	UserID      string               `json:"user_id"`
	Payload     json.RawMessage      `json:"payload,omitempty"`
	Attempt     int                  `json:"attempt"`
	MaxAttempts int                  `json:"max_attempts"`
	Backoff     domain.BackoffPolicy `json:"backoff"`
	EnqueuedAt  time.Time            `json:"enqueued_at"`
}

// NewLeadFetchTask builds a single-attempt lead-fetch task for a job.
func NewLeadFetchTask(campaignID, jobID, userID string) Task {
	return Task{
		ID:          uuid.NewString(),
		Kind:        LeadFetch,
		CampaignID:  campaignID,
		JobID:       jobID,
		UserID:      userID,
		Attempt:     1,
		MaxAttempts: 1,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// NewEmailSendTask builds an email-send task with the default three-attempt
// backoff policy.
func NewEmailSendTask(campaignID, userID string, payload json.RawMessage) Task {
	return Task{
		ID:          uuid.NewString(),
		Kind:        EmailSend,
		CampaignID:  campaignID,
		UserID:      userID,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: 3,
		Backoff:     domain.DefaultEmailBackoff(),
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Queue is one named Redis queue.
type Queue struct {
	rdb    *redis.Client
	name   Name
	logger logger.Logger
}

// New creates a queue over an existing Redis client.
func New(rdb *redis.Client, name Name, log logger.Logger) *Queue {
	return &Queue{rdb: rdb, name: name, logger: log}
}

func (q *Queue) waitingKey() string { return fmt.Sprintf("queue:%s:waiting", q.name) }
func (q *Queue) delayedKey() string { return fmt.Sprintf("queue:%s:delayed", q.name) }

// Enqueue persists a task for dispatch. A positive delay parks it in the
// delayed set until its ready-time.
func (q *Queue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: data}).Err(); err != nil {
			return fmt.Errorf("enqueue delayed: %w", err)
		}
	} else {
		if err := q.rdb.LPush(ctx, q.waitingKey(), data).Err(); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
	}

	q.logger.Debug("task enqueued",
		logger.String("queue", string(q.name)),
		logger.String("task_id", task.ID),
		logger.String("campaign_id", task.CampaignID),
		logger.Duration("delay", delay),
	)
	return nil
}

// Dequeue blocks up to timeout for the next task. Returns (nil, nil) when
// the wait times out, which lets workers re-check shutdown between polls.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.waitingKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	// BRPOP returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// PromoteDue moves delayed tasks whose ready-time has passed onto the
// waiting list. Called periodically by the worker pool.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	maxScore := fmt.Sprintf("%d", now.UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, m := range members {
		// Remove before push so two promoters cannot both move the same task.
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), m).Result()
		if err != nil {
			return promoted, fmt.Errorf("remove delayed: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.waitingKey(), m).Err(); err != nil {
			return promoted, fmt.Errorf("promote: %w", err)
		}
		promoted++
	}

	if promoted > 0 {
		q.logger.Debug("promoted delayed tasks",
			logger.String("queue", string(q.name)),
			logger.Int("count", promoted),
		)
	}
	return promoted, nil
}

// RetryLater re-enqueues a failed task with its backoff delay if attempts
// remain. Returns true when the task was requeued, false when its attempts
// are exhausted.
func (q *Queue) RetryLater(ctx context.Context, task Task) (bool, error) {
	if task.Attempt >= task.MaxAttempts {
		return false, nil
	}
	delay := task.Backoff.Delay(task.Attempt)
	task.Attempt++
	if err := q.Enqueue(ctx, task, delay); err != nil {
		return false, err
	}
	return true, nil
}

// RemovePendingForCampaign purges every waiting and delayed task whose
// payload references the campaign. Used by pause/cancel so a stale queued
// task cannot start after the user paused. The scan is O(queue depth), which
// is bounded by active campaigns, not leads.
func (q *Queue) RemovePendingForCampaign(ctx context.Context, campaignID string) (int, error) {
	removed := 0

	waiting, err := q.rdb.LRange(ctx, q.waitingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan waiting: %w", err)
	}
	for _, raw := range waiting {
		if !taskReferencesCampaign(raw, campaignID) {
			continue
		}
		n, err := q.rdb.LRem(ctx, q.waitingKey(), 0, raw).Result()
		if err != nil {
			return removed, fmt.Errorf("remove waiting: %w", err)
		}
		removed += int(n)
	}

	delayed, err := q.rdb.ZRange(ctx, q.delayedKey(), 0, -1).Result()
	if err != nil {
		return removed, fmt.Errorf("scan delayed: %w", err)
	}
	for _, raw := range delayed {
		if !taskReferencesCampaign(raw, campaignID) {
			continue
		}
		n, err := q.rdb.ZRem(ctx, q.delayedKey(), raw).Result()
		if err != nil {
			return removed, fmt.Errorf("remove delayed: %w", err)
		}
		removed += int(n)
	}

	if removed > 0 {
		q.logger.Info("purged queued tasks for campaign",
			logger.String("queue", string(q.name)),
			logger.String("campaign_id", campaignID),
			logger.Int("removed", removed),
		)
	}
	return removed, nil
}

// Depth returns the waiting and delayed task counts.
func (q *Queue) Depth(ctx context.Context) (waiting, delayed int64, err error) {
	waiting, err = q.rdb.LLen(ctx, q.waitingKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("waiting depth: %w", err)
	}
	delayed, err = q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("delayed depth: %w", err)
	}
	return waiting, delayed, nil
}

func taskReferencesCampaign(raw, campaignID string) bool {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return false
	}
	return t.CampaignID == campaignID
}
