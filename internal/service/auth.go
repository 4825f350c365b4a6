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

// Auth handles login, logout and bulk revocation. It composes the identity
// provider, the session tiers and the credential signer.
type Auth struct {
	idp        model.IdentityProvider
	users      model.UserStore
	sessions   model.SessionStore
	cache      model.SessionCache
	codec      model.SecretCodec
	tokens     model.TokenManager
	policy     *Policy
	refreshTTL time.Duration
	accessTTL  time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

// AuthConfig carries the Auth service dependencies and durations.
type AuthConfig struct {
	IdentityProvider model.IdentityProvider
	Users            model.UserStore
	Sessions         model.SessionStore
	Cache            model.SessionCache
	Codec            model.SecretCodec
	Tokens           model.TokenManager
	Policy           *Policy
	RefreshTTL       time.Duration
	AccessTTL        time.Duration
	Logger           *logger.Logger
}

func NewAuth(cfg AuthConfig) *Auth {
	return &Auth{
		idp:        cfg.IdentityProvider,
		users:      cfg.Users,
		sessions:   cfg.Sessions,
		cache:      cfg.Cache,
		codec:      cfg.Codec,
		tokens:     cfg.Tokens,
		policy:     cfg.Policy,
		refreshTTL: cfg.RefreshTTL,
		accessTTL:  cfg.AccessTTL,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string
	SessionID   string
	ExpiresIn   int
	User        model.User
}

// Login authenticates against the identity provider, provisions the local
// user, enforces the session policy and creates a new session.
func (a *Auth) Login(ctx context.Context, creds model.Credentials, deviceInfo map[string]string) (LoginResult, error) {
	bundle, err := a.idp.Authenticate(ctx, creds)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			return LoginResult{}, err
		}
		return LoginResult{}, fmt.Errorf("failed to authenticate: %w", err)
	}

	profile, err := a.idp.Profile(ctx, bundle.AccessToken)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to fetch profile: %w", err)
	}

	user, err := a.users.Upsert(ctx, model.User{
		Email:       profile.Email,
		IdpSubject:  profile.Subject,
		DisplayName: profile.DisplayName,
		IsActive:    true,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to provision user: %w", err)
	}

	if err := a.policy.Enforce(ctx, user.ID); err != nil {
		return LoginResult{}, fmt.Errorf("failed to enforce session policy: %w", err)
	}

	secretEnc, err := a.codec.Encrypt(bundle.RefreshToken)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to encrypt refresh secret: %w", err)
	}

	now := a.now()
	sessionID := uuid.NewString()
	session := model.Session{
		ID:               uuid.New(),
		SessionID:        sessionID,
		UserID:           user.ID,
		RefreshSecretEnc: secretEnc,
		RefreshExpiresAt: now.Add(a.refreshTTL),
		DeviceInfo:       deviceInfo,
		CreatedAt:        now,
		LastUsedAt:       now,
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return LoginResult{}, fmt.Errorf("failed to create session: %w", err)
	}

	// The durable row is authoritative; a cache write failure only costs a
	// repair on the next refresh.
	if err := a.cache.Set(ctx, sessionID, model.CachedSession{
		UserID:           user.ID,
		RefreshSecretEnc: secretEnc,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}, a.refreshTTL); err != nil {
		a.logger.Warn("failed to cache session", "session_id", sessionID, "error", err)
	}

	accessToken, err := a.tokens.Issue(user.ID, sessionID, rolesOf(user), a.accessTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to issue access token: %w", err)
	}

	a.logger.Info("user logged in", "user_id", user.ID, "session_id", sessionID)

	return LoginResult{
		AccessToken: accessToken,
		SessionID:   sessionID,
		ExpiresIn:   int(a.accessTTL.Seconds()),
		User:        user,
	}, nil
}

// Logout invalidates a single session. It always reports success: revoking
// an unknown or already-revoked session is a no-op.
func (a *Auth) Logout(ctx context.Context, sessionID string) {
	if err := a.cache.Delete(ctx, sessionID); err != nil {
		a.logger.Warn("failed to delete session from cache", "session_id", sessionID, "error", err)
	}
	if err := a.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, model.ErrNotFound) {
		a.logger.Warn("failed to revoke session", "session_id", sessionID, "error", err)
	}
}

// RevokeAll invalidates every active session of the user and returns how
// many sessions were revoked.
func (a *Auth) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	active, err := a.sessions.ListByUser(ctx, userID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	for _, s := range active {
		if err := a.cache.Delete(ctx, s.SessionID); err != nil {
			a.logger.Warn("failed to delete session from cache", "session_id", s.SessionID, "error", err)
		}
	}

	if err := a.sessions.RevokeAllByUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	a.logger.Info("revoked all sessions", "user_id", userID, "count", len(active))

	return len(active), nil
}

// rolesOf maps the stored role to the claim set, defaulting to user.
func rolesOf(u model.User) []string {
	if u.Role == "" {
		return []string{"user"}
	}
	return []string{u.Role}
}
