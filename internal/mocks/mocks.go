// Package mocks contains testify mocks for the model interfaces.
package mocks

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bizboard/auth-server/internal/model"
)

type SessionStore struct {
	mock.Mock
}

func (m *SessionStore) Create(ctx context.Context, session model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionStore) GetBySessionID(ctx context.Context, sessionID string) (model.Session, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *SessionStore) UpdateRefresh(ctx context.Context, sessionID string, secretEnc string, expiresAt time.Time) error {
	args := m.Called(ctx, sessionID, secretEnc, expiresAt)
	return args.Error(0)
}

func (m *SessionStore) Touch(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *SessionStore) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *SessionStore) ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]model.Session, error) {
	args := m.Called(ctx, userID, activeOnly)
	if sessions, ok := args.Get(0).([]model.Session); ok {
		return sessions, args.Error(1)
	}
	return nil, args.Error(1)
}

type SessionCache struct {
	mock.Mock
}

func (m *SessionCache) Set(ctx context.Context, sessionID string, data model.CachedSession, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, data, ttl)
	return args.Error(0)
}

func (m *SessionCache) Get(ctx context.Context, sessionID string) (model.CachedSession, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(model.CachedSession), args.Error(1)
}

func (m *SessionCache) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *SessionCache) Exists(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

type UserStore struct {
	mock.Mock
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetBySubject(ctx context.Context, subject string) (model.User, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Upsert(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

type TokenManager struct {
	mock.Mock
}

func (m *TokenManager) Issue(userID uuid.UUID, sessionID string, roles []string, ttl time.Duration) (string, error) {
	args := m.Called(userID, sessionID, roles, ttl)
	return args.String(0), args.Error(1)
}

func (m *TokenManager) Verify(token string) (model.AccessClaims, error) {
	args := m.Called(token)
	return args.Get(0).(model.AccessClaims), args.Error(1)
}

func (m *TokenManager) DecodeUnsafe(token string) (model.AccessClaims, error) {
	args := m.Called(token)
	return args.Get(0).(model.AccessClaims), args.Error(1)
}

type IdentityProvider struct {
	mock.Mock
}

func (m *IdentityProvider) Authenticate(ctx context.Context, creds model.Credentials) (model.TokenBundle, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(model.TokenBundle), args.Error(1)
}

func (m *IdentityProvider) Rotate(ctx context.Context, refreshSecret string) (model.TokenBundle, error) {
	args := m.Called(ctx, refreshSecret)
	return args.Get(0).(model.TokenBundle), args.Error(1)
}

func (m *IdentityProvider) Profile(ctx context.Context, accessToken string) (model.Profile, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(model.Profile), args.Error(1)
}

type SecretCodec struct {
	mock.Mock
}

func (m *SecretCodec) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *SecretCodec) Decrypt(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}

type SessionLocker struct {
	mock.Mock
}

func (m *SessionLocker) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, sessionID, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *SessionLocker) Release(ctx context.Context, sessionID string, token string) error {
	args := m.Called(ctx, sessionID, token)
	return args.Error(0)
}

type SecurityLayer struct {
	mock.Mock
}

func (m *SecurityLayer) Listen(protocol, addr string) (net.Listener, error) {
	args := m.Called(protocol, addr)
	if ln, ok := args.Get(0).(net.Listener); ok {
		return ln, args.Error(1)
	}
	return nil, args.Error(1)
}

type FailureCounter struct {
	mock.Mock
}

func (m *FailureCounter) Bump(ctx context.Context, sessionID string, ttl time.Duration) (int, error) {
	args := m.Called(ctx, sessionID, ttl)
	return args.Int(0), args.Error(1)
}

func (m *FailureCounter) Reset(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}
