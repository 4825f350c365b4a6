package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/model"
)

// Policy modes.
const (
	PolicySingle = "single"
	PolicyMulti  = "multi"
)

// Policy enforces the concurrent session limit at login time. Enforcement
// runs before the new session row exists, so after a successful login the
// active count never exceeds the limit.
type Policy struct {
	mode        string
	maxSessions int
	sessions    model.SessionStore
	cache       model.SessionCache
	logger      *logger.Logger
	now         func() time.Time
}

func NewPolicy(mode string, maxSessions int, sessions model.SessionStore, cache model.SessionCache, logger *logger.Logger) *Policy {
	return &Policy{
		mode:        mode,
		maxSessions: maxSessions,
		sessions:    sessions,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Enforce evicts sessions so that one more can be created. In single mode
// every active session is revoked. In multi mode the oldest active sessions
// are evicted until maxSessions-1 remain.
func (p *Policy) Enforce(ctx context.Context, userID uuid.UUID) error {
	active, err := p.sessions.ListByUser(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}

	now := p.now()
	usable := active[:0]
	for _, s := range active {
		if s.Usable(now) {
			usable = append(usable, s)
		}
	}

	var evict []model.Session
	switch p.mode {
	case PolicySingle:
		evict = usable
	default:
		if len(usable) >= p.maxSessions {
			// ListByUser orders by created_at ascending, oldest first.
			evict = usable[:len(usable)-p.maxSessions+1]
		}
	}

	for _, s := range evict {
		// Eviction is best-effort: a failed eviction must not block the login.
		if err := p.cache.Delete(ctx, s.SessionID); err != nil {
			p.logger.Warn("failed to delete evicted session from cache",
				"session_id", s.SessionID,
				"error", err)
		}
		if err := p.sessions.Revoke(ctx, s.SessionID); err != nil {
			p.logger.Warn("failed to revoke evicted session",
				"session_id", s.SessionID,
				"error", err)
			continue
		}
		p.logger.Info("evicted session by policy",
			"session_id", s.SessionID,
			"user_id", userID,
			"policy", p.mode)
	}

	return nil
}
