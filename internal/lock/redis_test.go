package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) *RedisLocker {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, zap.NewNop().Sugar())
}

func TestRedisLockerRejectsSecondHolder(t *testing.T) {
	l := newTestRedisLocker(t, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()

	release, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	again, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}

func TestRedisLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	l := newTestRedisLocker(t, 100*time.Millisecond)
	ctx := context.Background()
	key := uuid.NewString()

	stale, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)

	current, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	defer current()

	stale()
	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestNewRedisClientRejectsEmptyAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), " ")
	assert.Error(t, err)
}
