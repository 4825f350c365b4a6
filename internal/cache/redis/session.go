package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bizboard/auth-server/internal/model"
)

var _ model.SessionCache = (*SessionCache)(nil)

const sessionKeyPrefix = "session:"

// SessionCache mirrors session data into Redis. It is best-effort: every
// returned error is a miss to its callers, never authoritative absence.
type SessionCache struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

// NewSessionCache wraps an existing Redis client. opTimeout bounds each
// operation so a slow cache degrades to a miss instead of stalling requests.
func NewSessionCache(rdb *redis.Client, opTimeout time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, opTimeout: opTimeout}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (c *SessionCache) Set(ctx context.Context, sessionID string, data model.CachedSession, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("non-positive ttl %s for session cache entry", ttl)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cached session: %w", err)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, sessionKey(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached session: %w", err)
	}
	return nil
}

func (c *SessionCache) Get(ctx context.Context, sessionID string) (model.CachedSession, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	payload, err := c.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.CachedSession{}, model.ErrNotFound
		}
		return model.CachedSession{}, fmt.Errorf("failed to get cached session: %w", err)
	}

	var data model.CachedSession
	if err := json.Unmarshal(payload, &data); err != nil {
		return model.CachedSession{}, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}
	return data, nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached session: %w", err)
	}
	return nil
}

func (c *SessionCache) Exists(ctx context.Context, sessionID string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	n, err := c.rdb.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cached session: %w", err)
	}
	return n > 0, nil
}

func (c *SessionCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
