package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/model"
)

// RefreshResult is returned by a successful refresh.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
	UserID      uuid.UUID
	Roles       []string
}

// Refresher issues new access credentials for a session.
type Refresher interface {
	Refresh(ctx context.Context, sessionID string) (RefreshResult, error)
}

// Refresh orchestrates access credential renewal. A refresh well inside the
// validity window only touches last_used_at; near the end of the window the
// external refresh material is rotated under a per-session lock.
type Refresh struct {
	sessions             model.SessionStore
	cache                model.SessionCache
	users                model.UserStore
	codec                model.SecretCodec
	idp                  model.IdentityProvider
	tokens               model.TokenManager
	locker               model.SessionLocker
	failures             model.FailureCounter
	accessTTL            time.Duration
	refreshTTL           time.Duration
	renewThreshold       time.Duration
	lockTTL              time.Duration
	maxTransientFailures int
	logger               *logger.Logger
	now                  func() time.Time
	retryDelay           time.Duration
}

// RefreshConfig carries the Refresh service dependencies and tuning.
type RefreshConfig struct {
	Sessions             model.SessionStore
	Cache                model.SessionCache
	Users                model.UserStore
	Codec                model.SecretCodec
	IdentityProvider     model.IdentityProvider
	Tokens               model.TokenManager
	Locker               model.SessionLocker
	Failures             model.FailureCounter
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RenewThreshold       time.Duration
	LockTTL              time.Duration
	MaxTransientFailures int
	Logger               *logger.Logger
}

func NewRefresh(cfg RefreshConfig) *Refresh {
	return &Refresh{
		sessions:             cfg.Sessions,
		cache:                cfg.Cache,
		users:                cfg.Users,
		codec:                cfg.Codec,
		idp:                  cfg.IdentityProvider,
		tokens:               cfg.Tokens,
		locker:               cfg.Locker,
		failures:             cfg.Failures,
		accessTTL:            cfg.AccessTTL,
		refreshTTL:           cfg.RefreshTTL,
		renewThreshold:       cfg.RenewThreshold,
		lockTTL:              cfg.LockTTL,
		maxTransientFailures: cfg.MaxTransientFailures,
		logger:               cfg.Logger,
		now:                  time.Now,
		retryDelay:           150 * time.Millisecond,
	}
}

// Refresh issues a new access credential for the session. Errors are part
// of the contract: ErrSessionNotFound and ErrSessionExpired mean the caller
// must re-authenticate, ErrRefreshRejected means the session was
// invalidated, ErrRefreshUnavailable means the session is intact and the
// caller may retry.
func (r *Refresh) Refresh(ctx context.Context, sessionID string) (RefreshResult, error) {
	cached, err := r.lookup(ctx, sessionID)
	if err != nil {
		return RefreshResult{}, err
	}

	now := r.now()
	if !now.Before(cached.RefreshExpiresAt) {
		r.invalidate(ctx, sessionID)
		return RefreshResult{}, model.ErrSessionExpired
	}

	if cached.RefreshExpiresAt.Sub(now) > r.renewThreshold {
		// Plenty of validity left: no external call, just mark use.
		if err := r.sessions.Touch(ctx, sessionID); err != nil {
			r.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
		}
		return r.issue(ctx, cached.UserID, sessionID)
	}

	return r.rotate(ctx, sessionID, cached)
}

// lookup reads the session from the cache tier, falling back to the durable
// tier on a miss. Durable hits are written back with the remaining validity
// as TTL.
func (r *Refresh) lookup(ctx context.Context, sessionID string) (model.CachedSession, error) {
	cached, err := r.cache.Get(ctx, sessionID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		// A broken cache is a miss, never an authoritative absence.
		r.logger.Warn("cache lookup failed, falling back to store", "session_id", sessionID, "error", err)
	}

	session, err := r.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.CachedSession{}, model.ErrSessionNotFound
		}
		return model.CachedSession{}, fmt.Errorf("failed to load session: %w", err)
	}

	now := r.now()
	if !session.Usable(now) {
		r.invalidate(ctx, sessionID)
		return model.CachedSession{}, model.ErrSessionExpired
	}

	cached = model.CachedSession{
		UserID:           session.UserID,
		RefreshSecretEnc: session.RefreshSecretEnc,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}
	if err := r.cache.Set(ctx, sessionID, cached, session.Remaining(now)); err != nil {
		r.logger.Warn("failed to repair session cache", "session_id", sessionID, "error", err)
	}

	return cached, nil
}

// rotate exchanges the stored refresh material with the identity provider.
// A short-lived lock keeps concurrent refreshes of the same session from
// racing; the loser waits for the winner's result.
func (r *Refresh) rotate(ctx context.Context, sessionID string, cached model.CachedSession) (RefreshResult, error) {
	lockToken, acquired, err := r.locker.Acquire(ctx, sessionID, r.lockTTL)
	if err != nil {
		// Locking is an optimization; rotate anyway if the locker is down.
		r.logger.Warn("failed to acquire rotation lock", "session_id", sessionID, "error", err)
	} else if !acquired {
		return r.awaitRotation(ctx, sessionID, cached.UserID)
	}
	if acquired {
		defer func() {
			if err := r.locker.Release(ctx, sessionID, lockToken); err != nil {
				r.logger.Warn("failed to release rotation lock", "session_id", sessionID, "error", err)
			}
		}()
	}

	// Re-read the durable row under the lock: another node may have rotated
	// between our lookup and the lock grant.
	session, err := r.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return RefreshResult{}, model.ErrSessionNotFound
		}
		return RefreshResult{}, fmt.Errorf("failed to load session: %w", err)
	}
	now := r.now()
	if !session.Usable(now) {
		r.invalidate(ctx, sessionID)
		return RefreshResult{}, model.ErrSessionExpired
	}
	if session.Remaining(now) > r.renewThreshold {
		if err := r.sessions.Touch(ctx, sessionID); err != nil {
			r.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
		}
		return r.issue(ctx, session.UserID, sessionID)
	}

	secret, err := r.codec.Decrypt(session.RefreshSecretEnc)
	if err != nil {
		// Undecryptable material can never be rotated; the session is dead.
		r.logger.Error("stored refresh secret is undecryptable", "session_id", sessionID, "error", err)
		r.invalidate(ctx, sessionID)
		return RefreshResult{}, errors.Join(model.ErrRefreshRejected, err)
	}

	bundle, err := r.idp.Rotate(ctx, secret)
	if err != nil {
		return RefreshResult{}, r.classifyRotationFailure(ctx, sessionID, err)
	}

	if err := r.failures.Reset(ctx, sessionID); err != nil {
		r.logger.Warn("failed to reset failure counter", "session_id", sessionID, "error", err)
	}

	if bundle.RefreshToken != "" {
		if err := r.persistRotation(ctx, sessionID, session.UserID, bundle.RefreshToken); err != nil {
			return RefreshResult{}, err
		}
	} else {
		// Provider kept the refresh material; the validity window is
		// unchanged and only usage is recorded.
		if err := r.sessions.Touch(ctx, sessionID); err != nil {
			r.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
		}
	}

	r.logger.Info("rotated session refresh material",
		"session_id", sessionID,
		"rotated_secret", bundle.RefreshToken != "")

	return r.issue(ctx, session.UserID, sessionID)
}

// persistRotation stores the new refresh material in both tiers with a
// fresh validity window.
func (r *Refresh) persistRotation(ctx context.Context, sessionID string, userID uuid.UUID, refreshSecret string) error {
	secretEnc, err := r.codec.Encrypt(refreshSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh secret: %w", err)
	}

	expiresAt := r.now().Add(r.refreshTTL)
	if err := r.sessions.UpdateRefresh(ctx, sessionID, secretEnc, expiresAt); err != nil {
		return fmt.Errorf("failed to store rotated refresh secret: %w", err)
	}

	if err := r.cache.Set(ctx, sessionID, model.CachedSession{
		UserID:           userID,
		RefreshSecretEnc: secretEnc,
		RefreshExpiresAt: expiresAt,
	}, r.refreshTTL); err != nil {
		r.logger.Warn("failed to cache rotated session", "session_id", sessionID, "error", err)
	}

	return nil
}

// classifyRotationFailure maps a provider rotation failure onto the session
// lifecycle: terminal failures invalidate the session, transient ones are
// counted and escalate past the threshold.
func (r *Refresh) classifyRotationFailure(ctx context.Context, sessionID string, err error) error {
	var refreshErr *model.RefreshError
	if !errors.As(err, &refreshErr) {
		return fmt.Errorf("failed to rotate refresh secret: %w", err)
	}

	if refreshErr.Terminal() {
		r.logger.Info("identity provider rejected refresh material",
			"session_id", sessionID,
			"kind", string(refreshErr.Kind))
		r.invalidate(ctx, sessionID)
		if refreshErr.Kind == model.RefreshErrorExpired {
			return model.ErrSessionExpired
		}
		return model.ErrRefreshRejected
	}

	n, bumpErr := r.failures.Bump(ctx, sessionID, r.renewThreshold)
	if bumpErr != nil {
		r.logger.Warn("failed to bump failure counter", "session_id", sessionID, "error", bumpErr)
		return model.ErrRefreshUnavailable
	}
	if n >= r.maxTransientFailures {
		r.logger.Warn("transient failure threshold reached, invalidating session",
			"session_id", sessionID,
			"failures", n)
		r.invalidate(ctx, sessionID)
		return model.ErrRefreshRejected
	}

	r.logger.Warn("transient rotation failure",
		"session_id", sessionID,
		"failures", n,
		"error", refreshErr)

	return model.ErrRefreshUnavailable
}

// awaitRotation is the loser side of the rotation lock: wait briefly for
// the winner to finish, then issue from the rotated row.
func (r *Refresh) awaitRotation(ctx context.Context, sessionID string, userID uuid.UUID) (RefreshResult, error) {
	for attempt := 0; attempt < 3; attempt++ {
		select {
		case <-ctx.Done():
			return RefreshResult{}, ctx.Err()
		case <-time.After(r.retryDelay):
		}

		session, err := r.sessions.GetBySessionID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return RefreshResult{}, model.ErrSessionNotFound
			}
			return RefreshResult{}, fmt.Errorf("failed to load session: %w", err)
		}
		now := r.now()
		if !session.Usable(now) {
			return RefreshResult{}, model.ErrSessionExpired
		}
		if session.Remaining(now) > r.renewThreshold {
			return r.issue(ctx, userID, sessionID)
		}
	}

	// The winner did not finish in time; the session is intact.
	return RefreshResult{}, model.ErrRefreshUnavailable
}

// issue mints a new access credential for the session. Roles are re-read
// from the user store and default to user when the read fails.
func (r *Refresh) issue(ctx context.Context, userID uuid.UUID, sessionID string) (RefreshResult, error) {
	roles := []string{"user"}
	if user, err := r.users.GetByID(ctx, userID); err == nil {
		roles = rolesOf(user)
	} else {
		r.logger.Warn("failed to load user roles", "user_id", userID, "error", err)
	}

	accessToken, err := r.tokens.Issue(userID, sessionID, roles, r.accessTTL)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("failed to issue access token: %w", err)
	}

	return RefreshResult{
		AccessToken: accessToken,
		ExpiresIn:   int(r.accessTTL.Seconds()),
		UserID:      userID,
		Roles:       roles,
	}, nil
}

// invalidate removes the session from both tiers. Best-effort: the durable
// revoke is idempotent and the cache entry expires on its own.
func (r *Refresh) invalidate(ctx context.Context, sessionID string) {
	if err := r.cache.Delete(ctx, sessionID); err != nil {
		r.logger.Warn("failed to delete session from cache", "session_id", sessionID, "error", err)
	}
	if err := r.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, model.ErrNotFound) {
		r.logger.Warn("failed to revoke session", "session_id", sessionID, "error", err)
	}
}
