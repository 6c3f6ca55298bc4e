package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mbergh0930/create3x/internal/models"
)

const inflightTurnTTL = 24 * time.Hour

// SessionState holds the per-user current session pointer and the turn
// that has been drawn but not yet completed.
type SessionState interface {
	Current(ctx context.Context, userID uuid.UUID) (string, error)
	SetCurrent(ctx context.Context, userID uuid.UUID, sessionID string) error
	// ClearCurrent removes the pointer only if it still names sessionID.
	ClearCurrent(ctx context.Context, userID uuid.UUID, sessionID string) error

	Inflight(ctx context.Context, sessionID string) (*models.Turn, error)
	SetInflight(ctx context.Context, sessionID string, turn models.Turn) error
	ClearInflight(ctx context.Context, sessionID string) error
}

func currentSessionKey(userID uuid.UUID) string { return "current_session:" + userID.String() }
func inflightTurnKey(sessionID string) string    { return "inflight_turn:" + sessionID }

type RedisSessionState struct {
	redis *redis.Client
}

func NewRedisSessionState(redisClient *redis.Client) *RedisSessionState {
	return &RedisSessionState{redis: redisClient}
}

var _ SessionState = (*RedisSessionState)(nil)

// Current returns "" when the user has no current session.
func (r *RedisSessionState) Current(ctx context.Context, userID uuid.UUID) (string, error) {
	id, err := r.redis.Get(ctx, currentSessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (r *RedisSessionState) SetCurrent(ctx context.Context, userID uuid.UUID, sessionID string) error {
	return r.redis.Set(ctx, currentSessionKey(userID), sessionID, 0).Err()
}

var clearIfMatches = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisSessionState) ClearCurrent(ctx context.Context, userID uuid.UUID, sessionID string) error {
	return clearIfMatches.Run(ctx, r.redis, []string{currentSessionKey(userID)}, sessionID).Err()
}

// Inflight returns nil when no turn is pending for the session.
func (r *RedisSessionState) Inflight(ctx context.Context, sessionID string) (*models.Turn, error) {
	raw, err := r.redis.Get(ctx, inflightTurnKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turn models.Turn
	if err := json.Unmarshal(raw, &turn); err != nil {
		return nil, fmt.Errorf("decode inflight turn for %s: %w", sessionID, err)
	}
	return &turn, nil
}

func (r *RedisSessionState) SetInflight(ctx context.Context, sessionID string, turn models.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode inflight turn: %w", err)
	}
	return r.redis.Set(ctx, inflightTurnKey(sessionID), data, inflightTurnTTL).Err()
}

func (r *RedisSessionState) ClearInflight(ctx context.Context, sessionID string) error {
	return r.redis.Del(ctx, inflightTurnKey(sessionID)).Err()
}
