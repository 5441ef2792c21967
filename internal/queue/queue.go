// Package queue provides the Redis submission queue and the worker
// registry.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/state"
)

// ConnectRedis creates a Redis client from config.
func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Job is the queue payload handed to workers. It carries the full
// submission and its language so workers do not reload them.
type Job struct {
	Submission *state.Submission `json:"submission"`
	Language   *state.Language   `json:"language"`
}

type failedJob struct {
	SubmissionID string    `json:"submission_id"`
	Error        string    `json:"error"`
	FailedAt     time.Time `json:"failed_at"`
}

// queueName is the logical name of the submission queue.
const queueName = "submissions"

// Queue is a Redis list used as a FIFO submission queue.
type Queue struct {
	client    *redis.Client
	key       string
	failedKey string
}

// NewQueue creates a queue rooted at the given key prefix.
func NewQueue(client *redis.Client, prefix string) *Queue {
	return &Queue{
		client:    client,
		key:       prefix + ":queue:" + queueName,
		failedKey: prefix + ":queue:" + queueName + ":failed",
	}
}

// Name returns the logical queue name.
func (q *Queue) Name() string {
	return queueName
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a job. It returns nil when
// the timeout expires with the queue still empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BRPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Length returns the number of queued jobs.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// RecordFailure pushes an entry onto the failed list for jobs that hit
// a worker-side fault.
func (q *Queue) RecordFailure(ctx context.Context, submissionID, cause string) error {
	payload, err := json.Marshal(failedJob{
		SubmissionID: submissionID,
		Error:        cause,
		FailedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failed job: %w", err)
	}
	if err := q.client.LPush(ctx, q.failedKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// FailedCount returns the number of entries on the failed list.
func (q *Queue) FailedCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.failedKey).Result()
}
