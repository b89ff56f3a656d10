package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsipchain/driver-platform/domain"
)

// setupTestRedis creates an in-memory Redis instance for testing
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

const testToken = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

// sessionBackends runs the same contract against both session stores
func sessionBackends(t *testing.T) map[string]func(t *testing.T) domain.SessionRepository {
	return map[string]func(t *testing.T) domain.SessionRepository{
		"sql": func(t *testing.T) domain.SessionRepository {
			return NewSessionRepository(setupTestDB(t))
		},
		"redis": func(t *testing.T) domain.SessionRepository {
			return NewRedisSessionRepository(setupTestRedis(t))
		},
	}
}

func TestSessionRepository_CreateAndTouch(t *testing.T) {
	for name, newRepo := range sessionBackends(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()

			s := &domain.Session{Token: testToken, DriverID: 7, CreatedAt: baseTime, LastSeenAt: baseTime}
			require.NoError(t, repo.Create(ctx, s))

			touched, err := repo.Touch(ctx, testToken, baseTime.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, uint(7), touched.DriverID)
			assert.True(t, touched.CreatedAt.Equal(baseTime))
			assert.True(t, touched.LastSeenAt.Equal(baseTime.Add(time.Hour)))

			_, err = repo.Touch(ctx, "unknown", baseTime)
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)

			err = repo.Create(ctx, &domain.Session{Token: testToken, DriverID: 8, CreatedAt: baseTime, LastSeenAt: baseTime})
			assert.ErrorIs(t, err, domain.ErrSessionTokenConflict)
		})
	}
}

func TestSessionRepository_Revoke(t *testing.T) {
	for name, newRepo := range sessionBackends(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()

			require.NoError(t, repo.Create(ctx, &domain.Session{Token: testToken, DriverID: 7, CreatedAt: baseTime, LastSeenAt: baseTime}))

			revoked, err := repo.IsRevoked(ctx, testToken)
			require.NoError(t, err)
			assert.False(t, revoked)

			require.NoError(t, repo.Revoke(ctx, testToken, baseTime.Add(time.Minute)))

			revoked, err = repo.IsRevoked(ctx, testToken)
			require.NoError(t, err)
			assert.True(t, revoked)

			_, err = repo.Touch(ctx, testToken, baseTime.Add(2*time.Minute))
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)

			// idempotent, including for tokens that never existed
			assert.NoError(t, repo.Revoke(ctx, testToken, baseTime.Add(3*time.Minute)))
			assert.NoError(t, repo.Revoke(ctx, "never-issued", baseTime))
		})
	}
}

func TestRedisSessionRepository_Keys(t *testing.T) {
	client := setupTestRedis(t)
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Session{Token: testToken, DriverID: 3, CreatedAt: baseTime, LastSeenAt: baseTime}))
	assert.Equal(t, int64(1), client.Exists(ctx, "session:"+testToken).Val())
	assert.Equal(t, time.Duration(-1), client.TTL(ctx, "session:"+testToken).Val())

	require.NoError(t, repo.Revoke(ctx, testToken, baseTime))
	assert.Equal(t, int64(0), client.Exists(ctx, "session:"+testToken).Val())
	assert.Equal(t, int64(1), client.Exists(ctx, "revoked:"+testToken).Val())
}
