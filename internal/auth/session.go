// internal/auth/session.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken means no credential was configured.
	ErrMissingToken = errors.New("missing auth token")
	// ErrExpiredToken means the credential's exp claim has passed.
	ErrExpiredToken = errors.New("auth token expired")
)

// The client never holds the signing key, so tokens are only inspected, never
// verified. The server remains the authority; this only lets the client fail
// fast instead of sending a request it knows will be refused.
var parser = jwt.NewParser()

// claims returns the token's claims, or nil if the token is not a JWT. Opaque
// tokens are allowed and simply skip every local check.
func claims(token string) jwt.MapClaims {
	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return nil
	}
	return mc
}

// Validate checks a bearer token before it is used.
func Validate(token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	if Expired(token, now) {
		return ErrExpiredToken
	}
	return nil
}

// Expired reports whether a JWT token carries an exp claim at or before now.
// Tokens without exp (TOKEN_EXPIRE_TIME=never on the server) never expire.
func Expired(token string, now time.Time) bool {
	mc := claims(token)
	if mc == nil {
		return false
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// Subject returns the "sub" claim of a JWT token.
func Subject(token string) (string, error) {
	mc := claims(token)
	if mc == nil {
		return "", fmt.Errorf("token is not a jwt")
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid sub claim: %w", err)
	}
	if sub == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
