package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessClaims is the verified claim set of an access credential.
type AccessClaims struct {
	UserID    uuid.UUID
	SessionID string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager issues and validates access credentials. Verification is
// purely cryptographic: it never proves non-revocation, callers must still
// check the session store.
type TokenManager interface {
	Issue(userID uuid.UUID, sessionID string, roles []string, ttl time.Duration) (string, error)
	Verify(token string) (AccessClaims, error)
	// DecodeUnsafe recovers claims without signature checking. Only for
	// comparing the embedded session ID against a caller-supplied one.
	DecodeUnsafe(token string) (AccessClaims, error)
}
