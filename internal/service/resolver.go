package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/model"
)

// Stable rejection reasons reported by the resolver.
const (
	ReasonMissingCredentials = "missing_credentials"
	ReasonTokenInvalid       = "token_invalid"
	ReasonSessionMismatch    = "session_mismatch"
	ReasonSessionInactive    = "session_inactive"
	ReasonSessionExpired     = "session_expired"
	ReasonRefreshRejected    = "refresh_rejected"
	ReasonRefreshUnavailable = "refresh_unavailable"
)

// IdentitySource is one way a caller can present its credentials.
type IdentitySource interface {
	credentials() (accessToken string, sessionID string, ok bool)
}

// StructuredSource carries credentials already split into fields, the way
// cookies or headers deliver them.
type StructuredSource struct {
	AccessToken string
	SessionID   string
}

func (s StructuredSource) credentials() (string, string, bool) {
	return s.AccessToken, s.SessionID, s.AccessToken != "" && s.SessionID != ""
}

// RawSerializedSource carries both credentials packed into a single
// cookie-header style string: "access_token=AAA; session_id=BBB".
type RawSerializedSource struct {
	Raw string
}

func (s RawSerializedSource) credentials() (string, string, bool) {
	var accessToken, sessionID string
	for _, part := range strings.Split(s.Raw, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "access_token":
			accessToken = value
		case "session_id":
			sessionID = value
		}
	}
	return accessToken, sessionID, accessToken != "" && sessionID != ""
}

// Identity is the resolver verdict. When Authenticated is false, Reason
// holds one of the stable rejection reasons. NewAccessToken is set when the
// presented credential was silently renewed.
type Identity struct {
	Authenticated  bool
	UserID         uuid.UUID
	SessionID      string
	Roles          []string
	Reason         string
	NewAccessToken string
	ExpiresIn      int
}

// Resolver turns presented credentials into a verified identity. An expired
// access credential is renewed in place through the refresher, so callers
// never see the expiry as long as the session is alive.
type Resolver struct {
	tokens    model.TokenManager
	sessions  model.SessionStore
	refresher Refresher
	logger    *logger.Logger
	now       func() time.Time
}

func NewResolver(tokens model.TokenManager, sessions model.SessionStore, refresher Refresher, logger *logger.Logger) *Resolver {
	return &Resolver{
		tokens:    tokens,
		sessions:  sessions,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve checks sources in order and resolves the first one carrying a
// complete credential pair. Every source format resolves identically.
func (r *Resolver) Resolve(ctx context.Context, sources ...IdentitySource) Identity {
	for _, source := range sources {
		accessToken, sessionID, ok := source.credentials()
		if !ok {
			continue
		}
		return r.resolve(ctx, accessToken, sessionID)
	}
	return Identity{Reason: ReasonMissingCredentials}
}

func (r *Resolver) resolve(ctx context.Context, accessToken, sessionID string) Identity {
	claims, err := r.tokens.Verify(accessToken)
	switch {
	case err == nil:
		if claims.SessionID != sessionID {
			return Identity{Reason: ReasonSessionMismatch}
		}
		return r.checkSession(ctx, claims)
	case errors.Is(err, model.ErrTokenExpired):
		return r.renew(ctx, accessToken, sessionID)
	default:
		return Identity{Reason: ReasonTokenInvalid}
	}
}

// checkSession confirms the session behind a valid credential is still
// alive. Signature validity alone never proves non-revocation.
func (r *Resolver) checkSession(ctx context.Context, claims model.AccessClaims) Identity {
	session, err := r.sessions.GetBySessionID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Identity{Reason: ReasonSessionInactive}
		}
		r.logger.Error("failed to load session", "session_id", claims.SessionID, "error", err)
		return Identity{Reason: ReasonSessionInactive}
	}
	if !session.Usable(r.now()) {
		return Identity{Reason: ReasonSessionExpired}
	}

	return Identity{
		Authenticated: true,
		UserID:        claims.UserID,
		SessionID:     claims.SessionID,
		Roles:         claims.Roles,
	}
}

// renew handles an expired access credential: confirm the credential really
// belongs to the presented session, then refresh through the orchestrator.
func (r *Resolver) renew(ctx context.Context, accessToken, sessionID string) Identity {
	claims, err := r.tokens.DecodeUnsafe(accessToken)
	if err != nil {
		return Identity{Reason: ReasonTokenInvalid}
	}
	if claims.SessionID != sessionID {
		return Identity{Reason: ReasonSessionMismatch}
	}

	result, err := r.refresher.Refresh(ctx, sessionID)
	if err != nil {
		return Identity{Reason: refreshReason(err)}
	}

	return Identity{
		Authenticated:  true,
		UserID:         result.UserID,
		SessionID:      sessionID,
		Roles:          result.Roles,
		NewAccessToken: result.AccessToken,
		ExpiresIn:      result.ExpiresIn,
	}
}

func refreshReason(err error) string {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return ReasonSessionInactive
	case errors.Is(err, model.ErrSessionExpired):
		return ReasonSessionExpired
	case errors.Is(err, model.ErrRefreshRejected):
		return ReasonRefreshRejected
	default:
		return ReasonRefreshUnavailable
	}
}
