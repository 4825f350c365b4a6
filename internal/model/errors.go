package model

import "errors"

var (
	// ErrNotFound is the generic storage miss.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials means the login itself was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound and ErrSessionExpired are terminal: the caller must
	// re-authenticate.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrRefreshRejected means the identity provider refused the refresh
	// material; the session has been invalidated.
	ErrRefreshRejected = errors.New("refresh rejected")

	// ErrRefreshUnavailable is transient: the session is intact and the
	// caller may retry.
	ErrRefreshUnavailable = errors.New("refresh unavailable")

	// ErrDecryptFailed means the stored refresh material is unusable.
	ErrDecryptFailed = errors.New("decryption failed")

	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenInvalid   = errors.New("access token invalid")
	ErrTokenMalformed = errors.New("access token malformed")
)
