package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizboard/auth-server/internal/model"
)

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "session:abc", sessionKey("abc"))
}

// A zero or negative TTL would mean caching past the session's validity
// window; the cache refuses before touching Redis.
func TestSessionCache_Set_RejectsNonPositiveTTL(t *testing.T) {
	cache := NewSessionCache(nil, 0)

	err := cache.Set(context.Background(), "abc", model.CachedSession{}, 0)
	require.Error(t, err)

	err = cache.Set(context.Background(), "abc", model.CachedSession{}, -time.Second)
	require.Error(t, err)
}
