package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

// Publisher pushes a message to every WebSocket connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// JobEnqueuer records a job and hands it to the worker pool.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// UserChannel is the pub/sub channel the WebSocket hub subscribes to for a user.
func UserChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// QueueName is the Redis list a job type is pushed onto.
func QueueName(jobType string) string {
	return "queue:" + jobType
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Type, err)
	}
	return p.redis.Publish(ctx, UserChannel(userID), string(data)).Err()
}

type JobDispatcher struct {
	jobs  *repository.JobRepo
	redis *redis.Client
}

func NewJobDispatcher(jobs *repository.JobRepo, redisClient *redis.Client) *JobDispatcher {
	return &JobDispatcher{jobs: jobs, redis: redisClient}
}

func (d *JobDispatcher) Enqueue(ctx context.Context, job *models.Job) error {
	if err := d.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := d.redis.LPush(ctx, QueueName(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("queue job %s: %w", job.ID, err)
	}
	return nil
}
