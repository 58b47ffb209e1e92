package store

import (
	"context"
	"errors"
	"time"

	"github.com/caseledger/auth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. It exposes sub-repositories to keep
// concerns tidy and testable.
type Store interface {
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh
	// rotation). The caller MUST call Commit() or Rollback() on the
	// returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record in the Active
	// state.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the record by its SHA-256 fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RotateRefreshToken transitions the row for hash from Active to
	// Rotated, recording replacedBy, as a single conditional update. The
	// update matches only rows that are still Active and unexpired at now;
	// it returns the number of rows affected so the caller can detect a
	// lost race (0 means someone else got there first, or the row was
	// never eligible).
	RotateRefreshToken(ctx context.Context, hash, replacedBy string, now time.Time) (int64, error)

	// RevokeRefreshToken marks the row for hash Revoked. Idempotent: a row
	// already out of Active is left as is.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error

	// RevokeFamily marks every non-revoked row of the rotation lineage
	// Revoked, returning how many rows were affected. Used when a replayed
	// refresh token signals compromise of the whole family.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)

	// RevokeAllUserRefreshTokens bulk-revokes every active token of a user
	// (administrative revocation).
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteExpiredRefreshTokens removes rows whose expiry is older than
	// before. Housekeeping for storage hygiene, not correctness.
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) error
}
