package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL applies when no token lifetime is configured.
const DefaultTokenTTL = 30 * time.Minute

// ErrInvalidToken is returned for every token verification failure. Bad
// signature, malformed payload, expiry, and missing subject are deliberately
// indistinguishable to callers presenting a bearer credential.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and verifies signed, self-contained bearer tokens.
// Tokens are never persisted; validity is recomputed from the secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue mints an HS256 token carrying subject and an expiry of now + ttl.
func (t *TokenService) Issue(subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	})
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry in one step and returns the subject.
func (t *TokenService) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// TokenTTL reports the configured token lifetime.
func (t *TokenService) TokenTTL() time.Duration {
	return t.ttl
}
