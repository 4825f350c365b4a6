package model

import "context"

// Credentials is a user/password pair forwarded to the identity provider.
type Credentials struct {
	Email    string
	Password string
}

// TokenBundle is the identity provider's response to authentication or
// rotation. RefreshToken is empty when the provider did not rotate.
type TokenBundle struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
}

// Profile is the subset of provider user info needed for provisioning.
type Profile struct {
	Subject     string
	Email       string
	DisplayName string
}

// RefreshErrorKind classifies rotation failures. The classification is
// load-bearing: expired and invalid invalidate the session, transient does
// not.
type RefreshErrorKind string

const (
	RefreshErrorExpired   RefreshErrorKind = "expired"
	RefreshErrorInvalid   RefreshErrorKind = "invalid"
	RefreshErrorTransient RefreshErrorKind = "transient"
)

// RefreshError is returned by IdentityProvider.Rotate.
type RefreshError struct {
	Kind    RefreshErrorKind
	Message string
}

func (e *RefreshError) Error() string {
	return "refresh token " + string(e.Kind) + ": " + e.Message
}

// Terminal reports whether the failure must invalidate the session.
func (e *RefreshError) Terminal() bool {
	return e.Kind == RefreshErrorExpired || e.Kind == RefreshErrorInvalid
}

// IdentityProvider wraps the external authentication service.
type IdentityProvider interface {
	// Authenticate exchanges credentials for a token bundle.
	// Returns ErrInvalidCredentials on a rejected login.
	Authenticate(ctx context.Context, creds Credentials) (TokenBundle, error)
	// Rotate exchanges refresh material for a new bundle. Failures are
	// *RefreshError values.
	Rotate(ctx context.Context, refreshSecret string) (TokenBundle, error)
	// Profile fetches user info for the given provider access token.
	Profile(ctx context.Context, accessToken string) (Profile, error)
}

// SecretCodec encrypts refresh material for storage at rest.
type SecretCodec interface {
	Encrypt(plaintext string) (string, error)
	// Decrypt returns ErrDecryptFailed on any undecryptable input.
	Decrypt(ciphertext string) (string, error)
}
