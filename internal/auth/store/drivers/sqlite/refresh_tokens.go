package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/caseledger/auth/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, family_id, token_hash,
			email, roles, tenant_id,
			issued_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash,
		t.Email, strings.Join(t.Roles, " "), t.TenantID,
		t.IssuedAt.UTC(), t.ExpiresAt.UTC(),
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash,
		       email, roles, tenant_id,
		       issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens
		WHERE token_hash = ?`,
		hash,
	)
	return scanRefreshToken(row)
}

// RotateRefreshToken is the correctness-critical transition: a single
// conditional update that only matches a row still Active and unexpired.
// Of two concurrent callers presenting the same token, exactly one sees
// rows=1; the other sees rows=0 and must treat the token as replayed.
func (r *refreshTokensRepo) RotateRefreshToken(
	ctx context.Context,
	hash, replacedBy string,
	now time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET replaced_by = ?
		WHERE token_hash = ?
		  AND replaced_by IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > ?`,
		replacedBy, hash, now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		now.UTC(), hash,
	)
	return err
}

func (r *refreshTokensRepo) RevokeFamily(
	ctx context.Context,
	familyID string,
	now time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE family_id = ? AND revoked_at IS NULL`,
		now.UTC(), familyID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`,
		now.UTC(), userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < ?`,
		before.UTC(),
	)
	return err
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t          domain.RefreshToken
		roles      string
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash,
		&t.Email, &roles, &t.TenantID,
		&t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}

	if roles != "" {
		t.Roles = strings.Fields(roles)
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		t.RevokedAt = &v
	}
	if replacedBy.Valid {
		v := replacedBy.String
		t.ReplacedBy = &v
	}

	return t, nil
}
