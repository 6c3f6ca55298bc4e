package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the job transport the pool consumes.
type Queue interface {
	// Pop blocks up to timeout for a payload from any of queues. It returns
	// "" with a nil error when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, error)
	Push(ctx context.Context, queue, payload string) error
	// Lock claims key for ttl, reporting false if another worker holds it.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type RedisQueue struct {
	redis *redis.Client
}

func NewRedisQueue(redisClient *redis.Client) *RedisQueue {
	return &RedisQueue{redis: redisClient}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, error) {
	result, err := q.redis.BLPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}

func (q *RedisQueue) Push(ctx context.Context, queue, payload string) error {
	return q.redis.LPush(ctx, queue, payload).Err()
}

func (q *RedisQueue) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return q.redis.SetNX(ctx, key, "1", ttl).Result()
}

func (q *RedisQueue) Unlock(ctx context.Context, key string) error {
	return q.redis.Del(ctx, key).Err()
}
