package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for the token lifecycle.
// These provide sensible security defaults but can be overridden per-deployment.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are access-token claims used across the platform, we are keeping
// additive changes to preserve compatibility for later.
type Claims struct {
	jwt.RegisteredClaims

	/* Cross-service custom fields */

	// UserID of the authenticated user. Mirrors "sub" but kept as an
	// explicit field so consumers never have to guess what the subject is.
	UserID string `json:"userId,omitempty"`

	// Email of the authenticated user
	Email string `json:"email,omitempty"`

	// Roles held by the user, e.g. ["partner", "paralegal"]
	Roles []string `json:"roles,omitempty"`

	// TenantID identifies the firm the user belongs to. Empty in
	// single-tenant deployments.
	TenantID string `json:"tenantId,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	userID, email string,
	roles []string,
	tenantID string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		UserID:   userID,
		Email:    email,
		Roles:    slices.Clone(roles),
		TenantID: tenantID,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. The jti is
// what ends up in the revocation registry, so it has to be unguessable.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// MissingFields reports every required identity field absent from the claims,
// not just the first one, so callers get the complete picture in one pass.
func (c *Claims) MissingFields() []string {
	var missing []string
	if c.UserID == "" {
		missing = append(missing, "userId")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	return missing
}

// ValidateIdentity checks that the required identity claims are present.
// Returns ErrMissingClaims when any are absent; use MissingFields for the
// full list.
func (c *Claims) ValidateIdentity() error {
	if len(c.MissingFields()) > 0 {
		return ErrMissingClaims
	}
	return nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry(now time.Time) error {
	now = now.UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
