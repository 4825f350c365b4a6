package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizboard/auth-server/internal/mocks"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/testutil"
)

type stubRefresher struct {
	result    RefreshResult
	err       error
	sessionID string
}

func (s *stubRefresher) Refresh(_ context.Context, sessionID string) (RefreshResult, error) {
	s.sessionID = sessionID
	return s.result, s.err
}

type resolverFixture struct {
	tokens    *mocks.TokenManager
	sessions  *mocks.SessionStore
	refresher *stubRefresher
	resolver  *Resolver
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	f := &resolverFixture{
		tokens:    &mocks.TokenManager{},
		sessions:  &mocks.SessionStore{},
		refresher: &stubRefresher{},
	}
	f.resolver = NewResolver(f.tokens, f.sessions, f.refresher, testutil.MakeNoopLogger())
	return f
}

func TestResolver_MissingCredentials(t *testing.T) {
	f := newResolverFixture(t)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{},
		RawSerializedSource{Raw: ""})

	assert.False(t, identity.Authenticated)
	assert.Equal(t, ReasonMissingCredentials, identity.Reason)
}

func TestResolver_ValidToken(t *testing.T) {
	f := newResolverFixture(t)
	userID := uuid.New()
	sessionID := uuid.NewString()

	f.tokens.On("Verify", "jwt").Return(model.AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		Roles:     []string{"admin"},
	}, nil)
	f.sessions.On("GetBySessionID", context.Background(), sessionID).Return(model.Session{
		SessionID:        sessionID,
		UserID:           userID,
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "jwt", SessionID: sessionID})

	assert.True(t, identity.Authenticated)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, []string{"admin"}, identity.Roles)
	assert.Empty(t, identity.NewAccessToken)
}

func TestResolver_ValidTokenRevokedSession(t *testing.T) {
	f := newResolverFixture(t)
	sessionID := uuid.NewString()

	f.tokens.On("Verify", "jwt").Return(model.AccessClaims{
		UserID:    uuid.New(),
		SessionID: sessionID,
	}, nil)
	// The store only serves non-revoked rows, so a revoked session is a miss.
	f.sessions.On("GetBySessionID", context.Background(), sessionID).
		Return(model.Session{}, model.ErrNotFound)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "jwt", SessionID: sessionID})

	assert.False(t, identity.Authenticated)
	assert.Equal(t, ReasonSessionInactive, identity.Reason)
}

func TestResolver_SessionMismatch(t *testing.T) {
	f := newResolverFixture(t)

	f.tokens.On("Verify", "jwt").Return(model.AccessClaims{
		UserID:    uuid.New(),
		SessionID: "embedded-session",
	}, nil)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "jwt", SessionID: "presented-session"})

	assert.False(t, identity.Authenticated)
	assert.Equal(t, ReasonSessionMismatch, identity.Reason)
}

func TestResolver_ExpiredTokenIsRenewed(t *testing.T) {
	f := newResolverFixture(t)
	userID := uuid.New()
	sessionID := uuid.NewString()

	f.tokens.On("Verify", "stale-jwt").Return(model.AccessClaims{}, model.ErrTokenExpired)
	f.tokens.On("DecodeUnsafe", "stale-jwt").Return(model.AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
	}, nil)
	f.refresher.result = RefreshResult{
		AccessToken: "fresh-jwt",
		ExpiresIn:   900,
		UserID:      userID,
		Roles:       []string{"user"},
	}

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "stale-jwt", SessionID: sessionID})

	assert.True(t, identity.Authenticated)
	assert.Equal(t, "fresh-jwt", identity.NewAccessToken)
	assert.Equal(t, 900, identity.ExpiresIn)
	assert.Equal(t, sessionID, f.refresher.sessionID)
}

func TestResolver_ExpiredTokenMismatchIsNotRenewed(t *testing.T) {
	f := newResolverFixture(t)

	f.tokens.On("Verify", "stale-jwt").Return(model.AccessClaims{}, model.ErrTokenExpired)
	f.tokens.On("DecodeUnsafe", "stale-jwt").Return(model.AccessClaims{
		SessionID: "embedded-session",
	}, nil)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "stale-jwt", SessionID: "presented-session"})

	assert.False(t, identity.Authenticated)
	assert.Equal(t, ReasonSessionMismatch, identity.Reason)
	assert.Empty(t, f.refresher.sessionID)
}

func TestResolver_RefreshFailureReasons(t *testing.T) {
	tests := []struct {
		name       string
		refreshErr error
		wantReason string
	}{
		{name: "session not found", refreshErr: model.ErrSessionNotFound, wantReason: ReasonSessionInactive},
		{name: "session expired", refreshErr: model.ErrSessionExpired, wantReason: ReasonSessionExpired},
		{name: "refresh rejected", refreshErr: model.ErrRefreshRejected, wantReason: ReasonRefreshRejected},
		{name: "refresh unavailable", refreshErr: model.ErrRefreshUnavailable, wantReason: ReasonRefreshUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(t)
			sessionID := uuid.NewString()

			f.tokens.On("Verify", "stale-jwt").Return(model.AccessClaims{}, model.ErrTokenExpired)
			f.tokens.On("DecodeUnsafe", "stale-jwt").Return(model.AccessClaims{SessionID: sessionID}, nil)
			f.refresher.err = tt.refreshErr

			identity := f.resolver.Resolve(context.Background(),
				StructuredSource{AccessToken: "stale-jwt", SessionID: sessionID})

			assert.False(t, identity.Authenticated)
			assert.Equal(t, tt.wantReason, identity.Reason)
		})
	}
}

func TestResolver_InvalidToken(t *testing.T) {
	f := newResolverFixture(t)

	f.tokens.On("Verify", "garbage").Return(model.AccessClaims{}, model.ErrTokenInvalid)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "garbage", SessionID: "s"})

	assert.Equal(t, ReasonTokenInvalid, identity.Reason)
}

// Raw serialized credentials resolve exactly like structured ones.
func TestResolver_RawSerializedSource(t *testing.T) {
	f := newResolverFixture(t)
	userID := uuid.New()
	sessionID := "BBB"

	f.tokens.On("Verify", "AAA").Return(model.AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		Roles:     []string{"user"},
	}, nil)
	f.sessions.On("GetBySessionID", context.Background(), sessionID).Return(model.Session{
		SessionID:        sessionID,
		UserID:           userID,
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	identity := f.resolver.Resolve(context.Background(),
		RawSerializedSource{Raw: "access_token=AAA; session_id=BBB"})

	require.True(t, identity.Authenticated)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, sessionID, identity.SessionID)
}

func TestResolver_StructuredTakesPrecedence(t *testing.T) {
	f := newResolverFixture(t)
	userID := uuid.New()

	f.tokens.On("Verify", "structured-jwt").Return(model.AccessClaims{
		UserID:    userID,
		SessionID: "structured-session",
	}, nil)
	f.sessions.On("GetBySessionID", context.Background(), "structured-session").Return(model.Session{
		SessionID:        "structured-session",
		UserID:           userID,
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	identity := f.resolver.Resolve(context.Background(),
		StructuredSource{AccessToken: "structured-jwt", SessionID: "structured-session"},
		RawSerializedSource{Raw: "access_token=raw-jwt; session_id=raw-session"})

	require.True(t, identity.Authenticated)
	assert.Equal(t, "structured-session", identity.SessionID)
	f.tokens.AssertNotCalled(t, "Verify", "raw-jwt")
}

func TestRawSerializedSource_Parsing(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantAccess  string
		wantSession string
		wantOK      bool
	}{
		{
			name:        "canonical",
			raw:         "access_token=AAA; session_id=BBB",
			wantAccess:  "AAA",
			wantSession: "BBB",
			wantOK:      true,
		},
		{
			name:        "no space after separator",
			raw:         "access_token=AAA;session_id=BBB",
			wantAccess:  "AAA",
			wantSession: "BBB",
			wantOK:      true,
		},
		{
			name:        "reversed order",
			raw:         "session_id=BBB; access_token=AAA",
			wantAccess:  "AAA",
			wantSession: "BBB",
			wantOK:      true,
		},
		{
			name:        "extra pairs ignored",
			raw:         "theme=dark; access_token=AAA; session_id=BBB",
			wantAccess:  "AAA",
			wantSession: "BBB",
			wantOK:      true,
		},
		{
			name:   "missing session id",
			raw:    "access_token=AAA",
			wantOK: false,
		},
		{
			name:   "empty",
			raw:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access, session, ok := RawSerializedSource{Raw: tt.raw}.credentials()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantAccess, access)
				assert.Equal(t, tt.wantSession, session)
			}
		})
	}
}
