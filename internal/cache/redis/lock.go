package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bizboard/auth-server/internal/model"
)

var (
	_ model.SessionLocker  = (*Lock)(nil)
	_ model.FailureCounter = (*FailureCounter)(nil)
)

const (
	lockKeyPrefix = "lock:session:"
	failKeyPrefix = "fail:session:"
)

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a short-lived per-session mutex guarding external rotation, so at
// most one rotation runs per session per expiry cycle.
type Lock struct {
	rdb *redis.Client
}

func NewLock(rdb *redis.Client) *Lock {
	return &Lock{rdb: rdb}
}

func (l *Lock) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	acquired, err := l.rdb.SetNX(ctx, lockKeyPrefix+sessionID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Lock) Release(ctx context.Context, sessionID string, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKeyPrefix + sessionID}, token).Err(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}

// FailureCounter counts consecutive transient rotation failures per session.
type FailureCounter struct {
	rdb *redis.Client
}

func NewFailureCounter(rdb *redis.Client) *FailureCounter {
	return &FailureCounter{rdb: rdb}
}

func (c *FailureCounter) Bump(ctx context.Context, sessionID string, ttl time.Duration) (int, error) {
	key := failKeyPrefix + sessionID
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump failure counter: %w", err)
	}
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return 0, fmt.Errorf("failed to expire failure counter: %w", err)
	}
	return int(n), nil
}

func (c *FailureCounter) Reset(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, failKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}
