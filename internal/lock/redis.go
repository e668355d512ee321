package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "wolf:send:"

// releaseScript deletes the key only if this holder still owns it, so an
// expired lock taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker shares send locks across replicas. Locks expire after ttl so a
// crashed replica cannot wedge a conversation.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		// The send's context may already be cancelled; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.Warnw("Failed to release send lock", "key", key, "error", err)
		}
	}, nil
}
