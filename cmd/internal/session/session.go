// Package session adapts the external identity provider boundary: it
// verifies access tokens issued by the identity service and yields a user
// identity or none. Token issuing, credentials, and user provisioning are
// out of scope here.
package session

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken is returned when an access token fails verification
	// or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid verifier configuration.
	ErrConfig = errors.New("invalid config")
)

// AccessClaims is the minimal identity envelope extracted from a verified
// access token.
type AccessClaims struct {
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// TokenVerifier verifies access tokens minted by the external identity
// service.
type TokenVerifier interface {
	Verify(token string, now time.Time) (AccessClaims, error)
}
