package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrIdentityDisabled is returned by IdentityVerifier when no JWT secret
// is configured — the process runs with identity verification off rather
// than refusing to start.
var ErrIdentityDisabled = errors.New("config: identity verification disabled (no jwt_secret configured)")

// ErrInvalidIdentityToken is returned for any token that fails parsing,
// signature verification, or carries no subject.
var ErrInvalidIdentityToken = errors.New("config: invalid identity token")

// AgentClaims is the JWT payload verified at the process boundary: just
// enough to recover the calling agent's id for Options.AgentID and the
// capability-store checks in internal/dispatcher.
type AgentClaims struct {
	jwt.RegisteredClaims
}

// IdentityVerifier issues and verifies the JWTs that authenticate an
// agent to this process.
type IdentityVerifier struct {
	secret []byte
	expiry time.Duration
}

// NewIdentityVerifier builds a verifier from IdentityConfig. A verifier
// built with an empty secret always returns ErrIdentityDisabled.
func NewIdentityVerifier(cfg IdentityConfig) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(cfg.JWTSecret), expiry: cfg.TokenExpiry}
}

// Issue signs a token asserting agentID, expiring after the configured
// TokenExpiry (never, if TokenExpiry is zero).
func (v *IdentityVerifier) Issue(agentID string) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", ErrIdentityDisabled
	}
	if strings.TrimSpace(agentID) == "" {
		return "", fmt.Errorf("config: agent id required to issue a token")
	}
	claims := AgentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  agentID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if v.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(v.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses token and returns the agent id carried in its subject.
func (v *IdentityVerifier) Verify(token string) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", ErrIdentityDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &AgentClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", ErrInvalidIdentityToken
	}
	claims, ok := parsed.Claims.(*AgentClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidIdentityToken
	}
	return claims.Subject, nil
}
