// Package queue is a small Redis-backed job queue for outgoing email.
//
// Jobs move waiting -> active -> (completed | delayed | failed). Everything lives in
// Redis so a restarted worker picks up where the previous one stopped; jobs found in
// the active list at start-up are re-queued, which makes delivery at-least-once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/mailer"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

const EmailQueueName = "email"

type EmailJob struct {
	ID         string     `json:"id"`
	To         string     `json:"to"`
	Subject    string     `json:"subject"`
	Text       string     `json:"text,omitempty"`
	HTML       string     `json:"html,omitempty"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	FailedAt   *time.Time `json:"failed_at,omitempty"`
}

func (j EmailJob) message() mailer.Message {
	return mailer.Message{To: j.To, Subject: j.Subject, Text: j.Text, HTML: j.HTML}
}

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Delay after the given (1-based) failed attempt: BaseDelay, 2*BaseDelay, 4*BaseDelay...
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt-1))
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type EmailQueue struct {
	client       *redis.Client
	mailer       mailer.Mailer
	policy       RetryPolicy
	pollInterval time.Duration
	now          func() time.Time

	waitingKey   string
	activeKey    string
	delayedKey   string
	failedKey    string
	completedKey string
}

func NewEmailQueue(client *redis.Client, m mailer.Mailer) *EmailQueue {
	prefix := "queue:" + EmailQueueName + ":"
	return &EmailQueue{
		client:       client,
		mailer:       m,
		policy:       DefaultRetryPolicy,
		pollInterval: time.Second,
		now:          time.Now,
		waitingKey:   prefix + "waiting",
		activeKey:    prefix + "active",
		delayedKey:   prefix + "delayed",
		failedKey:    prefix + "failed",
		completedKey: prefix + "completed",
	}
}

func (q *EmailQueue) WithRetryPolicy(p RetryPolicy) *EmailQueue {
	q.policy = p
	return q
}

func (q *EmailQueue) WithClock(now func() time.Time) *EmailQueue {
	q.now = now
	return q
}

func (q *EmailQueue) WithPollInterval(d time.Duration) *EmailQueue {
	q.pollInterval = d
	return q
}

// Enqueue stores the job in the waiting list and returns its id.
func (q *EmailQueue) Enqueue(ctx context.Context, job EmailJob) (string, error) {
	if job.To == "" {
		return "", errors.New("email job has no recipient")
	}
	job.ID = uuid.NewString()
	job.Attempts = 0
	job.EnqueuedAt = q.now().UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.waitingKey, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue email job: %w", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"queue":  EmailQueueName,
		"job_id": job.ID,
		"to":     job.To,
	}).Debug("Email job enqueued")
	return job.ID, nil
}

// PromoteDue moves delayed jobs whose retry time has passed back to the waiting list.
func (q *EmailQueue) PromoteDue(ctx context.Context) (int, error) {
	until := strconv.FormatInt(q.now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{Min: "-inf", Max: until}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, payload := range due {
		// Only the caller that wins the ZREM pushes the job, so concurrent promoters
		// never duplicate it.
		removed, err := q.client.ZRem(ctx, q.delayedKey, payload).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.waitingKey, payload).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// ProcessNext handles at most one waiting job without blocking. It reports whether a
// job was taken.
func (q *EmailQueue) ProcessNext(ctx context.Context) (bool, error) {
	payload, err := q.client.RPopLPush(ctx, q.waitingKey, q.activeKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, q.handle(ctx, payload)
}

func (q *EmailQueue) processBlocking(ctx context.Context) (bool, error) {
	payload, err := q.client.BRPopLPush(ctx, q.waitingKey, q.activeKey, q.pollInterval).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, q.handle(ctx, payload)
}

func (q *EmailQueue) handle(ctx context.Context, payload string) error {
	var job EmailJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		utils.ErrorLogger.WithError(err).Error("Dropping malformed email job")
		_, txErr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey, 1, payload)
			pipe.LPush(ctx, q.failedKey, payload)
			return nil
		})
		return txErr
	}

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"queue":   EmailQueueName,
		"job_id":  job.ID,
		"attempt": job.Attempts + 1,
	})

	sendErr := q.mailer.Send(ctx, job.message())
	if sendErr == nil {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey, 1, payload)
			pipe.Incr(ctx, q.completedKey)
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("Email job completed")
		return nil
	}

	job.Attempts++
	job.LastError = sendErr.Error()

	if job.Attempts < q.policy.Attempts {
		delay := q.policy.Delay(job.Attempts)
		next, err := json.Marshal(job)
		if err != nil {
			return err
		}
		readyAt := float64(q.now().Add(delay).UnixMilli())
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey, 1, payload)
			pipe.ZAdd(ctx, q.delayedKey, &redis.Z{Score: readyAt, Member: next})
			return nil
		})
		if err != nil {
			return err
		}
		utils.ErrorLogger.WithFields(logrus.Fields{
			"queue":  EmailQueueName,
			"job_id": job.ID,
			"retry":  delay.String(),
		}).WithError(sendErr).Warn("Email job failed, retry scheduled")
		return nil
	}

	failedAt := q.now().UTC()
	job.FailedAt = &failedAt
	final, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey, 1, payload)
		pipe.LPush(ctx, q.failedKey, final)
		return nil
	})
	if err != nil {
		return err
	}
	utils.ErrorLogger.WithFields(logrus.Fields{
		"queue":    EmailQueueName,
		"job_id":   job.ID,
		"attempts": job.Attempts,
	}).WithError(sendErr).Error("Email job failed permanently")
	return nil
}

// RecoverActive re-queues jobs left in the active list by a worker that died mid-job.
func (q *EmailQueue) RecoverActive(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.client.RPopLPush(ctx, q.activeKey, q.waitingKey).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		utils.InfoLogger.WithField("jobs", recovered).Warn("Re-queued orphaned email jobs")
	}
	return recovered, nil
}

// Run is the single consumer loop. It returns when ctx is cancelled.
func (q *EmailQueue) Run(ctx context.Context) error {
	if _, err := q.RecoverActive(ctx); err != nil {
		return fmt.Errorf("recover active jobs: %w", err)
	}
	utils.InfoLogger.WithField("queue", EmailQueueName).Info("Email worker started")

	for {
		if ctx.Err() != nil {
			utils.InfoLogger.WithField("queue", EmailQueueName).Info("Email worker stopped")
			return nil
		}
		if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			utils.ErrorLogger.WithError(err).Error("Promote delayed email jobs")
		}
		if _, err := q.processBlocking(ctx); err != nil && ctx.Err() == nil {
			utils.ErrorLogger.WithError(err).Error("Process email job")
			select {
			case <-ctx.Done():
			case <-time.After(q.pollInterval):
			}
		}
	}
}

func (q *EmailQueue) Stats(ctx context.Context) (Stats, error) {
	var (
		waiting, active, failed *redis.IntCmd
		delayed                 *redis.IntCmd
		completed               *redis.StringCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, q.waitingKey)
		active = pipe.LLen(ctx, q.activeKey)
		delayed = pipe.ZCard(ctx, q.delayedKey)
		failed = pipe.LLen(ctx, q.failedKey)
		completed = pipe.Get(ctx, q.completedKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}

	stats := Stats{
		Waiting: waiting.Val(),
		Active:  active.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}
	if n, err := completed.Int64(); err == nil {
		stats.Completed = n
	}
	return stats, nil
}

// Failed returns up to limit permanently failed jobs, most recent first.
func (q *EmailQueue) Failed(ctx context.Context, limit int) ([]EmailJob, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := q.client.LRange(ctx, q.failedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]EmailJob, 0, len(raw))
	for _, payload := range raw {
		var job EmailJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// requeueFailed swaps one failed payload for its reset copy on the waiting list in a
// single step; it returns 0 when the payload is no longer in failed.
var requeueFailed = redis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 1 then
	redis.call("LPUSH", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// RetryFailed moves every failed job back to waiting with a fresh attempt budget.
// Payloads that cannot be decoded stay in failed for inspection.
func (q *EmailQueue) RetryFailed(ctx context.Context) (int, error) {
	payloads, err := q.client.LRange(ctx, q.failedKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, payload := range payloads {
		var job EmailJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			utils.ErrorLogger.WithError(err).Warn("Leaving malformed email job in failed")
			continue
		}
		job.Attempts = 0
		job.LastError = ""
		job.FailedAt = nil
		fresh, err := json.Marshal(job)
		if err != nil {
			return retried, err
		}
		moved, err := requeueFailed.Run(ctx, q.client, []string{q.failedKey, q.waitingKey}, payload, string(fresh)).Int()
		if err != nil {
			return retried, err
		}
		retried += moved
	}
	return retried, nil
}
