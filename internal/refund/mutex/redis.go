package mutex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "idserver/pkg/domain"
)

const redisKeyPrefix = "refund:lock:"

// RedisLocker keeps the lock as a key with a TTL, so an orphaned lock
// expires on its own.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, sessionID id.SessionID) error {
	ok, err := l.client.SetNX(ctx, redisKey(sessionID), time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire refund lock: %w", err)
	}
	if !ok {
		return ErrRefundInProgress
	}
	return nil
}

func (l *RedisLocker) Release(ctx context.Context, sessionID id.SessionID) error {
	if err := l.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("release refund lock: %w", err)
	}
	return nil
}

func redisKey(sessionID id.SessionID) string {
	return redisKeyPrefix + sessionID.String()
}
