package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/caseledger/auth/internal/auth/domain"
	"github.com/caseledger/auth/internal/auth/registry"
	"github.com/caseledger/auth/internal/auth/store"
	"github.com/caseledger/auth/pkg/cryptox"
	"github.com/caseledger/auth/pkg/idx"
	"github.com/caseledger/auth/pkg/jwtx"
	"github.com/caseledger/auth/pkg/slogx"
	"github.com/caseledger/auth/pkg/tlru"
)

const (
	// defaultRefreshRetries bounds retries of a refresh against transient
	// store failures. Retrying is safe only because rotation is a single
	// conditional update: replaying a rotation that already committed
	// matches zero rows instead of double-issuing.
	defaultRefreshRetries = 2
)

// validatedToken is what the validation cache holds per access token: the
// decoded principal plus the two facts we must re-check on every hit.
// Expiry and revocation are always evaluated live; only the HMAC and claim
// decoding work is saved.
type validatedToken struct {
	principal domain.Principal
	expiresAt time.Time
	jti       string
}

// TokenService orchestrates the token lifecycle: generation, validation,
// rotation, and revocation. It composes the signer/verifier pair, the
// refresh token store, and the shared revocation registry.
//
// Validation is stateless apart from immutable configuration, so a single
// TokenService is safe for any number of concurrent callers.
type TokenService struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Store    store.Store
	Registry registry.Registry

	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RegistryFailOpen controls behavior when the revocation registry is
	// unreachable. The default (false) fails closed: the token is treated
	// as not validatable, trading availability for revocation correctness.
	// Flipping this is a reviewed deployment decision, not a tuning knob.
	RegistryFailOpen bool

	// Cache, when set, memoizes signature verification and claim decoding
	// per access token. Expiry and the revocation registry are still
	// consulted on every call, so a cache hit can never outlive a
	// revocation or an expiry.
	Cache *tlru.Cache[string, validatedToken]

	// Now is the clock used for issuance and state checks. Defaults to
	// time.Now; tests pin it to drive expiry scenarios.
	Now func() time.Time
}

// NewValidationCache builds a cache suitable for TokenService.Cache.
func NewValidationCache(capacity int, ttl time.Duration) *tlru.Cache[string, validatedToken] {
	return tlru.New[string, validatedToken](capacity, ttl)
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GenerateAccessToken signs a short-lived access token for the principal.
// The principal has already been authenticated by the credential layer;
// this service never sees passwords.
func (s *TokenService) GenerateAccessToken(p domain.Principal) (string, error) {
	claims := jwtx.NewAccessClaims(
		p.UserID,
		p.Email,
		p.Roles,
		p.TenantID,
		s.AccessTTL,
		s.Issuer,
		s.Audience,
		s.now(),
	)
	return s.Signer.Sign(claims)
}

// GenerateRefreshToken mints an opaque refresh token for the principal,
// persisting only its fingerprint plus lifecycle metadata. The raw value is
// returned to the caller exactly once and never stored.
//
// The new row starts its own rotation family: its family id is its own id.
func (s *TokenService) GenerateRefreshToken(ctx context.Context, p domain.Principal) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	now := s.now()
	id := idx.New().String()

	rt := domain.RefreshToken{
		ID:        id,
		UserID:    p.UserID,
		FamilyID:  id,
		TokenHash: cryptox.FingerprintToken(raw),
		Email:     p.Email,
		Roles:     p.Roles,
		TenantID:  p.TenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.RefreshTTL),
	}

	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return "", err
	}

	return raw, nil
}

// GeneratePair issues a fresh access+refresh pair for a verified principal.
// This is what the login flow calls after the credential check succeeds.
func (s *TokenService) GeneratePair(ctx context.Context, p domain.Principal) (*domain.TokenPair, error) {
	access, err := s.GenerateAccessToken(p)
	if err != nil {
		return nil, err
	}

	refresh, err := s.GenerateRefreshToken(ctx, p)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Validate checks an access token end to end: signature, temporal validity,
// required claims, and the revocation registry. Failures are values from
// the closed taxonomy; no parsing error escapes this method.
func (s *TokenService) Validate(ctx context.Context, token string) domain.Result {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(token) == "" {
		return domain.Fail(domain.FailureTokenMissing)
	}

	vt, res, ok := s.verifyAndDecode(token)
	if !ok {
		return res
	}

	if !s.now().Before(vt.expiresAt) {
		return domain.FailExpired(vt.principal.UserID)
	}

	revoked, err := s.Registry.IsRevoked(ctx, vt.jti)
	if err != nil {
		if !s.RegistryFailOpen {
			// Fail closed: an unreachable registry means the token is not
			// validatable, not that it is valid.
			l.Error("revocation registry unreachable, failing closed", slog.Any("error", err))
			return domain.Fail(domain.FailureTokenRevoked)
		}
		l.Warn("revocation registry unreachable, failing open", slog.Any("error", err))
	}
	if revoked {
		return domain.Fail(domain.FailureTokenRevoked)
	}

	return domain.Succeed(vt.principal)
}

// verifyAndDecode performs the cacheable part of validation: signature
// verification and claim decoding. Returns ok=false with the failure result
// when the token is bad.
func (s *TokenService) verifyAndDecode(token string) (validatedToken, domain.Result, bool) {
	fp := cryptox.FingerprintToken(token)

	if s.Cache != nil {
		if vt, hit := s.Cache.Get(fp); hit {
			return vt, domain.Result{}, true
		}
	}

	claims, err := s.Verifier.Verify(token)
	if err != nil {
		return validatedToken{}, mapVerifyError(claims, err), false
	}

	if missing := claims.MissingFields(); len(missing) > 0 {
		return validatedToken{}, domain.FailMissingClaims(missing), false
	}
	if claims.ExpiresAt == nil {
		// We never issue tokens without exp; one without it is not ours.
		return validatedToken{}, domain.Fail(domain.FailureTokenMalformed), false
	}

	vt := validatedToken{
		principal: domain.Principal{
			UserID:   claims.UserID,
			Email:    claims.Email,
			Roles:    claims.Roles,
			TenantID: claims.TenantID,
		},
		expiresAt: claims.ExpiresAt.Time,
		jti:       claims.ID,
	}

	if s.Cache != nil {
		s.Cache.Set(fp, vt)
	}

	return vt, domain.Result{}, true
}

// mapVerifyError folds the verifier's closed error set into the failure
// taxonomy. Issuer, audience, and algorithm mismatches all read as "not a
// token we issued", which is InvalidSignature as far as callers go.
func mapVerifyError(claims *jwtx.Claims, err error) domain.Result {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		subject := ""
		if claims != nil {
			subject = claims.Subject
		}
		return domain.FailExpired(subject)
	case errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrAlgMismatch),
		errors.Is(err, jwtx.ErrIssuer),
		errors.Is(err, jwtx.ErrAudience):
		return domain.Fail(domain.FailureInvalidSignature)
	case errors.Is(err, jwtx.ErrMissingClaims):
		return domain.FailMissingClaims(nil)
	default:
		return domain.Fail(domain.FailureTokenMalformed)
	}
}

// Refresh consumes a raw refresh token and atomically issues a new
// access+refresh pair while rotating the old row.
//
// The returned Result classifies authentication failures (replay, expiry,
// unknown token). A non-nil error means the store itself failed after
// bounded retries; the caller should treat that as a transient outage, not
// an authentication verdict.
func (s *TokenService) Refresh(ctx context.Context, rawRefreshToken string) (*domain.TokenPair, domain.Result, error) {
	var (
		pair *domain.TokenPair
		res  domain.Result
		err  error
	)

	// Retrying is safe: rotation is idempotent via the conditional update,
	// so replaying an attempt that actually committed cannot double-issue.
	for attempt := 0; attempt <= defaultRefreshRetries; attempt++ {
		pair, res, err = s.refreshOnce(ctx, rawRefreshToken)
		if err == nil {
			return pair, res, nil
		}
	}
	return nil, domain.Result{}, err
}

func (s *TokenService) refreshOnce(ctx context.Context, raw string) (*domain.TokenPair, domain.Result, error) {
	now := s.now()
	fp := cryptox.FingerprintToken(raw)
	l := slogx.FromContext(ctx)

	var (
		pair *domain.TokenPair
		res  domain.Result
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Not a token we ever issued.
				res = domain.Fail(domain.FailureTokenMalformed)
				return nil
			}
			return err
		}

		switch rt.State(now) {
		case domain.StateRotated, domain.StateRevoked:
			// Reuse of a consumed token is a replay signal. Revoke the
			// entire family: the legitimate holder re-authenticates, the
			// attacker holds nothing.
			n, err := tx.RefreshTokens().RevokeFamily(ctx, rt.FamilyID, now)
			if err != nil {
				return err
			}
			l.Warn("refresh token reuse detected, family revoked",
				slog.String("user_id", rt.UserID),
				slog.String("family_id", rt.FamilyID),
				slog.Int64("tokens_revoked", n),
			)
			res = domain.Fail(domain.FailureTokenRevoked)
			return nil

		case domain.StateExpired:
			res = domain.FailExpired(rt.UserID)
			return nil
		}

		// Active: rotate. The conditional update is the linearization
		// point; of two concurrent callers exactly one sees rows=1.
		newRaw, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}
		newID := idx.New().String()

		rows, err := tx.RefreshTokens().RotateRefreshToken(ctx, fp, newID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost the race to a concurrent refresh of the same token,
			// which is a replay by definition. Same treatment as above.
			n, err := tx.RefreshTokens().RevokeFamily(ctx, rt.FamilyID, now)
			if err != nil {
				return err
			}
			l.Warn("concurrent refresh of the same token, family revoked",
				slog.String("user_id", rt.UserID),
				slog.String("family_id", rt.FamilyID),
				slog.Int64("tokens_revoked", n),
			)
			res = domain.Fail(domain.FailureTokenRevoked)
			return nil
		}

		successor := domain.RefreshToken{
			ID:        newID,
			UserID:    rt.UserID,
			FamilyID:  rt.FamilyID,
			TokenHash: cryptox.FingerprintToken(newRaw),
			Email:     rt.Email,
			Roles:     rt.Roles,
			TenantID:  rt.TenantID,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.RefreshTTL),
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, successor); err != nil {
			return err
		}

		access, err := s.GenerateAccessToken(rt.Principal())
		if err != nil {
			return err
		}

		pair = &domain.TokenPair{
			AccessToken:  access,
			RefreshToken: newRaw,
			TokenType:    "Bearer",
			ExpiresIn:    s.AccessTTL,
		}
		res = domain.Succeed(rt.Principal())
		return nil
	})
	if err != nil {
		return nil, domain.Result{}, err
	}

	return pair, res, nil
}

// Revoke handles explicit logout or detected compromise: the refresh row is
// marked Revoked and the access token's identifier is blacklisted in the
// registry until its natural expiry. Either argument may be empty.
func (s *TokenService) Revoke(ctx context.Context, rawRefreshToken, accessToken string) error {
	now := s.now()

	if rawRefreshToken != "" {
		fp := cryptox.FingerprintToken(rawRefreshToken)
		if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, fp, now); err != nil {
			return err
		}
	}

	if accessToken != "" {
		claims, err := s.Verifier.Verify(accessToken)
		if err != nil {
			// An expired or unverifiable access token needs no blacklist
			// entry; it can't pass validation anyway.
			return nil
		}

		if s.Cache != nil {
			s.Cache.Delete(cryptox.FingerprintToken(accessToken))
		}

		ttl := claims.ExpiresAt.Sub(now)
		if err := s.Registry.Revoke(ctx, claims.ID, ttl); err != nil {
			return err
		}
	}

	return nil
}

// RevokeUser is the administrative hammer: every active refresh token of the
// user is revoked. Outstanding access tokens die on their own within
// AccessTTL; we don't track their identifiers per user.
func (s *TokenService) RevokeUser(ctx context.Context, userID string) (int64, error) {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID, s.now())
}
