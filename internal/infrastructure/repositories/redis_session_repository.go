package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsipchain/driver-platform/domain"
)

// RedisSessionRepository implements domain.SessionRepository using Redis.
// Sessions carry no TTL; they live until revoked.
type RedisSessionRepository struct {
	client        *redis.Client
	prefix        string
	revokedPrefix string
}

type redisSession struct {
	DriverID   uint      `json:"driver_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NewRedisSessionRepository creates a new Redis-backed session repository
func NewRedisSessionRepository(client *redis.Client) domain.SessionRepository {
	return &RedisSessionRepository{
		client:        client,
		prefix:        "session:",
		revokedPrefix: "revoked:",
	}
}

// Create implements domain.SessionRepository
func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(redisSession{
		DriverID:   session.DriverID,
		CreatedAt:  session.CreatedAt.UTC(),
		LastSeenAt: session.LastSeenAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.prefix+session.Token, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return domain.ErrSessionTokenConflict
	}
	return nil
}

// Touch implements domain.SessionRepository. SET XX never resurrects a
// session deleted by a concurrent Revoke.
func (r *RedisSessionRepository) Touch(ctx context.Context, token string, now time.Time) (*domain.Session, error) {
	key := r.prefix + token
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	stored.LastSeenAt = now.UTC()

	updated, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := r.client.SetXX(ctx, key, updated, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	return &domain.Session{
		Token:      token,
		DriverID:   stored.DriverID,
		CreatedAt:  stored.CreatedAt,
		LastSeenAt: stored.LastSeenAt,
	}, nil
}

// IsRevoked implements domain.SessionRepository
func (r *RedisSessionRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.revokedPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// Revoke implements domain.SessionRepository. Both writes go out in one MULTI/EXEC.
func (r *RedisSessionRepository) Revoke(ctx context.Context, token string, now time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, r.revokedPrefix+token, now.UTC().Format(time.RFC3339Nano), 0)
		pipe.Del(ctx, r.prefix+token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
