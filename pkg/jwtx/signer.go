package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyBytes is the minimum HMAC key length we accept. Anything shorter
// than 256 bits weakens HS256 below its design strength, so we refuse it at
// construction time instead of finding out in production.
const MinKeyBytes = 32

// Signer is our interface for anything that can sign token claims.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256Signer implements the Signer interface using HMAC-SHA256 with a
// shared secret. The algorithm is fixed per deployment; there is no
// negotiation, which closes off downgrade attacks.
type HS256Signer struct {
	key []byte
	alg string
}

// NewSignerHS256 creates an HS256 signer from the raw secret bytes.
// Keys shorter than MinKeyBytes are rejected.
func NewSignerHS256(key []byte) (*HS256Signer, error) {
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("jwtx: HS256 key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}

	return &HS256Signer{
		key: key,
		alg: jwt.SigningMethodHS256.Alg(),
	}, nil
}

func (s *HS256Signer) Alg() string { return s.alg }

// Sign takes your claims and turns them into a signed compact token string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.key)
}

// Validate does a quick sanity check to make sure we actually have a key.
func (s *HS256Signer) Validate() error {
	if len(s.key) < MinKeyBytes {
		return errors.New("jwtx: HS256 key too short")
	}
	return nil
}
