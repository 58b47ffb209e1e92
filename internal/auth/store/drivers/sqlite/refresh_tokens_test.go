package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caseledger/auth/internal/auth/domain"
	"github.com/caseledger/auth/internal/auth/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func activeToken(id, hash string, now time.Time) domain.RefreshToken {
	return domain.RefreshToken{
		ID:        id,
		UserID:    "usr-100",
		FamilyID:  id,
		TokenHash: hash,
		Email:     "jordan@lydell.law",
		Roles:     []string{"partner", "billing"},
		TenantID:  "firm-lydell",
		IssuedAt:  now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	want := activeToken("rt-1", "hash-1", now)
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, want))

	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.FamilyID, got.FamilyID)
	require.Equal(t, want.Email, got.Email)
	require.Equal(t, want.Roles, got.Roles)
	require.Equal(t, want.TenantID, got.TenantID)
	require.WithinDuration(t, want.IssuedAt, got.IssuedAt, time.Second)
	require.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Second)
	require.Nil(t, got.RevokedAt)
	require.Nil(t, got.ReplacedBy)
	require.Equal(t, domain.StateActive, got.State(now))
}

func TestGetUnknownHashIsNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.RefreshTokens().GetRefreshTokenByHash(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDuplicateHashRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)))
	err := st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-2", "hash-1", now))
	require.Error(t, err, "token_hash is unique")
}

func TestRotateIsSingleShot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)))

	n, err := st.RefreshTokens().RotateRefreshToken(ctx, "hash-1", "rt-2", now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// The second rotation of the same row matches nothing.
	n, err = st.RefreshTokens().RotateRefreshToken(ctx, "hash-1", "rt-3", now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got.ReplacedBy)
	require.Equal(t, "rt-2", *got.ReplacedBy, "the first rotation's successor sticks")
	require.Equal(t, domain.StateRotated, got.State(now))
}

func TestRotateSkipsExpiredAndRevokedRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := activeToken("rt-old", "hash-old", now.Add(-8*24*time.Hour))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, expired))

	n, err := st.RefreshTokens().RotateRefreshToken(ctx, "hash-old", "rt-x", now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "expired rows are not rotatable")

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)))
	require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-1", now))

	n, err = st.RefreshTokens().RotateRefreshToken(ctx, "hash-1", "rt-x", now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "revoked rows are not rotatable")
}

func TestRevokeIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)))
	require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-1", now))

	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	first := *got.RevokedAt

	// Revoking again must not move the timestamp.
	require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-1", now.Add(time.Hour)))
	got, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.WithinDuration(t, first, *got.RevokedAt, time.Second)
}

func TestRevokeFamilyCoversTheLineage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Three generations of one family plus an unrelated token.
	for _, tok := range []domain.RefreshToken{
		{ID: "rt-1", UserID: "usr-100", FamilyID: "rt-1", TokenHash: "h1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "rt-2", UserID: "usr-100", FamilyID: "rt-1", TokenHash: "h2", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "rt-3", UserID: "usr-100", FamilyID: "rt-1", TokenHash: "h3", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "rt-9", UserID: "usr-200", FamilyID: "rt-9", TokenHash: "h9", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, tok))
	}

	n, err := st.RefreshTokens().RevokeFamily(ctx, "rt-1", now)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	other, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "h9")
	require.NoError(t, err)
	require.Nil(t, other.RevokedAt, "unrelated families are untouched")
}

func TestRevokeAllUserRefreshTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tok := range []domain.RefreshToken{
		{ID: "rt-1", UserID: "usr-100", FamilyID: "rt-1", TokenHash: "h1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "rt-2", UserID: "usr-100", FamilyID: "rt-2", TokenHash: "h2", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "rt-9", UserID: "usr-200", FamilyID: "rt-9", TokenHash: "h9", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, tok))
	}

	n, err := st.RefreshTokens().RevokeAllUserRefreshTokens(ctx, "usr-100", now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	other, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "h9")
	require.NoError(t, err)
	require.Nil(t, other.RevokedAt)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := activeToken("rt-old", "hash-old", now.Add(-30*24*time.Hour))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, old))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)))

	require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now.Add(-24*time.Hour)))

	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-old")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sentinel := store.ErrAlreadyExists
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now)); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.ErrorIs(t, err, store.ErrNotFound, "rolled-back writes must not be visible")
}

func TestWithTxCommits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := st.WithTx(ctx, func(tx store.Tx) error {
		return tx.RefreshTokens().CreateRefreshToken(ctx, activeToken("rt-1", "hash-1", now))
	})
	require.NoError(t, err)

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
	require.NoError(t, err)
}
