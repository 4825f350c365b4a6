package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bizboard/auth-server/internal/model"
)

// Claims represents the signed access credential claim set. The session ID
// rides in the registered JTI claim so revocation checks can find the
// backing session.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles"`
	TokenType string   `json:"token_type"`
}

// JWT implements model.TokenManager backed by RS256.
type JWT struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
}

const typeAccess = "access"

// NewJWT creates an RS256 token manager from PEM-encoded keys.
func NewJWT(privatePEM, publicPEM, issuer, audience string) (*JWT, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privatePEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &JWT{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
	}, nil
}

// Issue creates a short-lived access credential for the given session.
func (j *JWT) Issue(userID uuid.UUID, sessionID string, roles []string, ttl time.Duration) (string, error) {
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{j.audience},
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:     roles,
		TokenType: typeAccess,
	})

	tokenString, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// Verify validates signature, audience, issuer and expiry. It does not
// consult storage.
func (j *JWT) Verify(tokenString string) (model.AccessClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.publicKey, nil
	}, jwt.WithAudience(j.audience), jwt.WithIssuer(j.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AccessClaims{}, model.ErrTokenExpired
		}
		return model.AccessClaims{}, model.ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != typeAccess {
		return model.AccessClaims{}, model.ErrTokenInvalid
	}

	return toAccessClaims(claims)
}

// DecodeUnsafe recovers claims from an expired or invalid credential without
// signature checking.
func (j *JWT) DecodeUnsafe(tokenString string) (model.AccessClaims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return model.AccessClaims{}, model.ErrTokenMalformed
	}

	out, err := toAccessClaims(claims)
	if err != nil {
		return model.AccessClaims{}, model.ErrTokenMalformed
	}
	return out, nil
}

func toAccessClaims(claims *Claims) (model.AccessClaims, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.AccessClaims{}, model.ErrTokenInvalid
	}

	out := model.AccessClaims{
		UserID:    userID,
		SessionID: claims.ID,
		Roles:     claims.Roles,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
