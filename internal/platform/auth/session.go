// Package auth mints and verifies the signed tokens that let returning
// shoppers reopen their order history without re-identifying.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const defaultTTL = 10 * time.Minute

var (
	// ErrTokenInvalid reports a malformed, forged or mismatched token.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrTokenExpired reports a token past its sliding window.
	ErrTokenExpired = errors.New("auth: token expired")
)

// SessionTokenManagerDeps lists the dependencies for the manager.
type SessionTokenManagerDeps struct {
	// Secret signs tokens with HMAC-SHA256.
	Secret string
	// TTL is the sliding window length, ten minutes by default.
	TTL   time.Duration
	Clock func() time.Time
}

// SessionTokenManager issues short-lived HS256 tokens bound to a tax ID.
type SessionTokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessionTokenManager validates deps and builds the manager.
func NewSessionTokenManager(deps SessionTokenManagerDeps) (*SessionTokenManager, error) {
	secret := strings.TrimSpace(deps.Secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionTokenManager{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// TTL returns the sliding window length.
func (m *SessionTokenManager) TTL() time.Duration {
	return m.ttl
}

// Mint issues a token for the tax ID, expiring one window from now.
func (m *SessionTokenManager) Mint(taxID string) (string, time.Time, error) {
	taxID = strings.TrimSpace(taxID)
	if taxID == "" {
		return "", time.Time{}, errors.New("auth: tax ID is required")
	}

	now := m.clock()
	expiresAt := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   taxID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the token signature and expiry and returns the bound tax ID.
func (m *SessionTokenManager) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return "", ErrTokenInvalid
	}

	taxID := strings.TrimSpace(claims.Subject)
	if taxID == "" {
		return "", ErrTokenInvalid
	}
	// Expiry is checked against the injected clock rather than the
	// parser's wall clock.
	if claims.ExpiresAt == nil || !m.clock().Before(claims.ExpiresAt.Time) {
		return "", ErrTokenExpired
	}
	return taxID, nil
}

// Renew verifies the token and issues a replacement with a fresh window.
func (m *SessionTokenManager) Renew(token string) (string, string, time.Time, error) {
	taxID, err := m.Verify(token)
	if err != nil {
		return "", "", time.Time{}, err
	}
	renewed, expiresAt, err := m.Mint(taxID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return taxID, renewed, expiresAt, nil
}
