package domain

import "time"

// TokenPair is what the token operations return: the short-lived access
// token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expiresIn"`           // seconds until access token expiry
}

// RefreshTokenState is the lifecycle state of a stored refresh token.
// Active is the only non-terminal state; Rotated, Revoked, and Expired are
// all terminal.
type RefreshTokenState string

const (
	StateActive  RefreshTokenState = "active"
	StateRotated RefreshTokenState = "rotated"
	StateRevoked RefreshTokenState = "revoked"
	StateExpired RefreshTokenState = "expired"
)

// RefreshToken models the stored refresh token record. Only the SHA-256
// fingerprint of the raw token is ever persisted.
//
// A row is mutated only to transition it out of Active; it is never reused
// to extend its own validity.
type RefreshToken struct {
	ID       string
	UserID   string
	FamilyID string // id of the first token in the rotation lineage

	TokenHash string // deterministic fingerprint (base64url SHA-256)

	// Identity attributes snapshotted at issue time so a refresh can
	// re-issue an access token without consulting the external user store.
	Email    string
	Roles    []string
	TenantID string

	IssuedAt  time.Time
	ExpiresAt time.Time

	RevokedAt  *time.Time // set on explicit revocation or reuse detection
	ReplacedBy *string    // id of the successor row, set on rotation
}

// State derives the lifecycle state at the given instant. Revocation wins
// over rotation so a revoked family stays revoked regardless of history.
func (t RefreshToken) State(now time.Time) RefreshTokenState {
	switch {
	case t.RevokedAt != nil:
		return StateRevoked
	case t.ReplacedBy != nil:
		return StateRotated
	case now.After(t.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// Principal rebuilds the principal snapshotted on the row.
func (t RefreshToken) Principal() Principal {
	return Principal{
		UserID:   t.UserID,
		Email:    t.Email,
		Roles:    t.Roles,
		TenantID: t.TenantID,
	}
}
