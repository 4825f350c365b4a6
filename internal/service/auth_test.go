package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bizboard/auth-server/internal/mocks"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/testutil"
)

type authFixture struct {
	idp      *mocks.IdentityProvider
	users    *mocks.UserStore
	sessions *mocks.SessionStore
	cache    *mocks.SessionCache
	codec    *mocks.SecretCodec
	tokens   *mocks.TokenManager
	auth     *Auth
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		idp:      &mocks.IdentityProvider{},
		users:    &mocks.UserStore{},
		sessions: &mocks.SessionStore{},
		cache:    &mocks.SessionCache{},
		codec:    &mocks.SecretCodec{},
		tokens:   &mocks.TokenManager{},
	}
	log := testutil.MakeNoopLogger()
	policy := NewPolicy(PolicyMulti, 3, f.sessions, f.cache, log)
	f.auth = NewAuth(AuthConfig{
		IdentityProvider: f.idp,
		Users:            f.users,
		Sessions:         f.sessions,
		Cache:            f.cache,
		Codec:            f.codec,
		Tokens:           f.tokens,
		Policy:           policy,
		RefreshTTL:       168 * time.Hour,
		AccessTTL:        15 * time.Minute,
		Logger:           log,
	})
	return f
}

func TestAuth_Login_Success(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	creds := model.Credentials{Email: "user@example.com", Password: "secret"}
	user := model.User{ID: uuid.New(), Email: creds.Email, Role: "user"}

	f.idp.On("Authenticate", ctx, creds).Return(model.TokenBundle{
		AccessToken:  "idp-access",
		RefreshToken: "idp-refresh",
	}, nil)
	f.idp.On("Profile", ctx, "idp-access").Return(model.Profile{
		Subject: "subject-1",
		Email:   creds.Email,
	}, nil)
	f.users.On("Upsert", ctx, mock.MatchedBy(func(u model.User) bool {
		return u.IdpSubject == "subject-1" && u.Email == creds.Email && u.IsActive
	})).Return(user, nil)
	f.sessions.On("ListByUser", ctx, user.ID, true).Return([]model.Session{}, nil)
	f.codec.On("Encrypt", "idp-refresh").Return("enc-refresh", nil)

	var created model.Session
	f.sessions.On("Create", ctx, mock.MatchedBy(func(s model.Session) bool {
		created = s
		return s.UserID == user.ID && s.RefreshSecretEnc == "enc-refresh" && s.SessionID != ""
	})).Return(nil)
	f.cache.On("Set", ctx, mock.Anything, mock.Anything, 168*time.Hour).Return(nil)
	f.tokens.On("Issue", user.ID, mock.Anything, []string{"user"}, 15*time.Minute).Return("jwt", nil)

	result, err := f.auth.Login(ctx, creds, map[string]string{"ip_address": "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", result.AccessToken)
	assert.Equal(t, created.SessionID, result.SessionID)
	assert.Equal(t, 900, result.ExpiresIn)
	assert.WithinDuration(t, time.Now().Add(168*time.Hour), created.RefreshExpiresAt, time.Minute)

	f.idp.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestAuth_Login_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	f.idp.On("Authenticate", ctx, mock.Anything).
		Return(model.TokenBundle{}, model.ErrInvalidCredentials)

	_, err := f.auth.Login(ctx, model.Credentials{Email: "a", Password: "b"}, nil)
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	f.users.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestAuth_Login_CacheFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	user := model.User{ID: uuid.New(), Role: "user"}

	f.idp.On("Authenticate", ctx, mock.Anything).Return(model.TokenBundle{
		AccessToken:  "idp-access",
		RefreshToken: "idp-refresh",
	}, nil)
	f.idp.On("Profile", ctx, "idp-access").Return(model.Profile{Subject: "s"}, nil)
	f.users.On("Upsert", ctx, mock.Anything).Return(user, nil)
	f.sessions.On("ListByUser", ctx, user.ID, true).Return([]model.Session{}, nil)
	f.codec.On("Encrypt", "idp-refresh").Return("enc", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.cache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	f.tokens.On("Issue", user.ID, mock.Anything, []string{"user"}, mock.Anything).Return("jwt", nil)

	result, err := f.auth.Login(ctx, model.Credentials{Email: "a", Password: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "jwt", result.AccessToken)
}

func TestAuth_Login_EnforcesPolicyBeforeCreate(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	user := model.User{ID: uuid.New(), Role: "user"}
	now := time.Now()
	existing := []model.Session{
		activeSession(user.ID, now.Add(-3*time.Hour)),
		activeSession(user.ID, now.Add(-2*time.Hour)),
		activeSession(user.ID, now.Add(-time.Hour)),
	}

	f.idp.On("Authenticate", ctx, mock.Anything).Return(model.TokenBundle{
		AccessToken:  "idp-access",
		RefreshToken: "idp-refresh",
	}, nil)
	f.idp.On("Profile", ctx, "idp-access").Return(model.Profile{Subject: "s"}, nil)
	f.users.On("Upsert", ctx, mock.Anything).Return(user, nil)
	f.sessions.On("ListByUser", ctx, user.ID, true).Return(existing, nil)
	// Fourth login at limit 3 evicts exactly the oldest session.
	f.cache.On("Delete", ctx, existing[0].SessionID).Return(nil)
	f.sessions.On("Revoke", ctx, existing[0].SessionID).Return(nil)
	f.codec.On("Encrypt", "idp-refresh").Return("enc", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.cache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.tokens.On("Issue", user.ID, mock.Anything, []string{"user"}, mock.Anything).Return("jwt", nil)

	_, err := f.auth.Login(ctx, model.Credentials{Email: "a", Password: "b"}, nil)
	require.NoError(t, err)

	f.sessions.AssertExpectations(t)
	f.sessions.AssertNotCalled(t, "Revoke", ctx, existing[1].SessionID)
	f.sessions.AssertNotCalled(t, "Revoke", ctx, existing[2].SessionID)
}

func TestAuth_Logout_AlwaysSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	f.cache.On("Delete", ctx, "gone").Return(assert.AnError)
	f.sessions.On("Revoke", ctx, "gone").Return(model.ErrNotFound)

	// No error surface at all: logout of an unknown session is a no-op.
	f.auth.Logout(ctx, "gone")

	f.cache.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

func TestAuth_RevokeAll(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	userID := uuid.New()
	sessions := []model.Session{
		activeSession(userID, time.Now().Add(-2*time.Hour)),
		activeSession(userID, time.Now().Add(-time.Hour)),
	}

	f.sessions.On("ListByUser", ctx, userID, true).Return(sessions, nil)
	for _, s := range sessions {
		f.cache.On("Delete", ctx, s.SessionID).Return(nil)
	}
	f.sessions.On("RevokeAllByUser", ctx, userID).Return(nil)

	count, err := f.auth.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
