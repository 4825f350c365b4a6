package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session binds a user to encrypted refresh material. It is the unit of
// revocation: access credentials reference it by SessionID and die with it.
type Session struct {
	ID               uuid.UUID
	SessionID        string
	UserID           uuid.UUID
	RefreshSecretEnc string
	RefreshExpiresAt time.Time
	Revoked          bool
	DeviceInfo       map[string]string
	CreatedAt        time.Time
	LastUsedAt       time.Time
}

// Usable reports whether the session can still mint access credentials.
func (s Session) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.RefreshExpiresAt)
}

// Remaining returns the time left in the refresh validity window.
func (s Session) Remaining(now time.Time) time.Duration {
	return s.RefreshExpiresAt.Sub(now)
}

// NormalizeDeviceInfo fills in placeholder values so stored device info
// always carries the same keys.
func NormalizeDeviceInfo(info map[string]string) map[string]string {
	normalized := map[string]string{
		"ip_address": "unknown",
		"user_agent": "unknown",
	}
	for k, v := range info {
		if v != "" {
			normalized[k] = v
		}
	}
	return normalized
}

// CachedSession is the point-in-time subset of a session mirrored into the
// cache tier. It is never authoritative.
type CachedSession struct {
	UserID           uuid.UUID `json:"user_id"`
	RefreshSecretEnc string    `json:"refresh_token_enc"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionStore persists sessions in the durable tier.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	// GetBySessionID returns only non-revoked sessions. Callers check expiry.
	GetBySessionID(ctx context.Context, sessionID string) (Session, error)
	UpdateRefresh(ctx context.Context, sessionID string, secretEnc string, expiresAt time.Time) error
	Touch(ctx context.Context, sessionID string) error
	Revoke(ctx context.Context, sessionID string) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]Session, error)
}

// SessionCache is the best-effort cache tier. Any error it returns is
// treated by callers as a miss, never as authoritative absence.
type SessionCache interface {
	Set(ctx context.Context, sessionID string, data CachedSession, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (CachedSession, error)
	Delete(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// SessionLocker serializes external rotation per session. Acquire returns a
// release token; acquired == false means another holder owns the lock.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, sessionID string, token string) error
}

// FailureCounter tracks consecutive transient rotation failures per session.
type FailureCounter interface {
	Bump(ctx context.Context, sessionID string, ttl time.Duration) (int, error)
	Reset(ctx context.Context, sessionID string) error
}
