package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a compact token string and gives you back the claims if
// it's legit.
//
// Every parsing or signature failure from the underlying JWT library is
// mapped onto the closed error set below before it leaves this package.
// Callers above this boundary only ever see these sentinels.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer        = errors.New("jwtx: issuer mismatch")
	ErrAudience      = errors.New("jwtx: audience mismatch")
	ErrExpired       = errors.New("jwtx: token expired")
	ErrNotYetValid   = errors.New("jwtx: token not yet valid")
	ErrMissingClaims = errors.New("jwtx: missing required claims")
)

// HS256Verifier validates tokens signed with HMAC-SHA256. The accepted
// algorithm is pinned; a token claiming any other "alg" is rejected as
// malformed input rather than negotiated down.
type HS256Verifier struct {
	key    []byte
	issuer string
	aud    []string

	// Now is the clock used for expiry checks. Defaults to time.Now,
	// overridable so tests can pin the clock.
	Now func() time.Time
}

// NewVerifierHS256 creates a verifier for the given shared secret,
// expected issuer and audience values.
func NewVerifierHS256(key []byte, issuer string, aud []string) (*HS256Verifier, error) {
	if len(key) < MinKeyBytes {
		return nil, errors.New("jwtx: HS256 key too short")
	}
	return &HS256Verifier{key: key, issuer: issuer, aud: aud, Now: time.Now}, nil
}

// Verify validates the token string and returns its parsed Claims.
//
// On ErrExpired the parsed claims are returned alongside the error so the
// caller can still log the subject of the stale token.
func (v *HS256Verifier) Verify(tokenStr string) (*Claims, error) {
	// The compact serialization is exactly three dot-separated segments.
	// Check this up front so garbage input never reaches the parser.
	if strings.Count(tokenStr, ".") != 2 {
		return nil, ErrMalformed
	}

	// Claims validity (exp/nbf/iss/aud) is checked by hand below so an
	// expired token still yields its claims; the parser only has to prove
	// the signature.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSig
	}

	// Now check all the claim requirements.
	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.aud); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(v.now()); err != nil {
		if errors.Is(err, ErrExpired) {
			return claims, err
		}
		return nil, err
	}

	return claims, nil
}

func (v *HS256Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// mapParseError folds the JWT library's error zoo into our closed set.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		// Anything else (truncated segments, bad base64, bogus JSON) is
		// malformed input as far as callers are concerned.
		return ErrMalformed
	}
}
