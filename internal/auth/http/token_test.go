package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/caseledger/auth/internal/auth/domain"
	"github.com/caseledger/auth/internal/auth/registry"
	"github.com/caseledger/auth/internal/auth/service"
	"github.com/caseledger/auth/internal/auth/store/drivers/sqlite"
	"github.com/caseledger/auth/pkg/jwtx"
)

type webEnv struct {
	router *Router
	svc    *service.TokenService
	mr     *miniredis.Miniredis
}

func newWebEnv(t *testing.T) *webEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	reg := registry.NewRedisRegistry(rdb, "authtest", time.Second)

	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jwtx.NewSignerHS256(key)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(key, "caseledger-auth", []string{"caseledger-api"})
	require.NoError(t, err)

	svc := &service.TokenService{
		Signer:     signer,
		Verifier:   verifier,
		Store:      st,
		Registry:   reg,
		Issuer:     "caseledger-auth",
		Audience:   []string{"caseledger-api"},
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter("test", st, reg, svc, logger)
	router.ApplyRoutes()

	return &webEnv{router: router, svc: svc, mr: mr}
}

func postJSON(t *testing.T, router *Router, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRefreshEndpointIssuesNewPair(t *testing.T) {
	e := newWebEnv(t)

	pair, err := e.svc.GeneratePair(context.Background(), domain.Principal{
		UserID: "usr-100", Email: "jordan@lydell.law",
		Roles: []string{"partner"}, TenantID: "firm-lydell",
	})
	require.NoError(t, err)

	rec := postJSON(t, e.router, "/v1/token/refresh",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var got tokenPairResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.AccessToken)
	require.NotEmpty(t, got.RefreshToken)
	require.NotEqual(t, pair.RefreshToken, got.RefreshToken)
	require.Equal(t, "Bearer", got.TokenType)
	require.EqualValues(t, 900, got.ExpiresIn)
}

func TestRefreshEndpointGenericEnvelopeOnFailure(t *testing.T) {
	e := newWebEnv(t)

	pair, err := e.svc.GeneratePair(context.Background(), domain.Principal{
		UserID: "usr-100", Email: "jordan@lydell.law",
	})
	require.NoError(t, err)

	// Consume the token, then replay it; also try a never-issued value.
	rec := postJSON(t, e.router, "/v1/token/refresh",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	replay := postJSON(t, e.router, "/v1/token/refresh",
		refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	unknown := postJSON(t, e.router, "/v1/token/refresh",
		refreshRequest{RefreshToken: "never-issued"}, nil)

	// Both failures produce byte-compatible envelopes: same status, same
	// generic message, no hint of the underlying failure kind.
	for _, rec := range []*httptest.ResponseRecorder{replay, unknown} {
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var env ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, http.StatusUnauthorized, env.Code)
		require.Equal(t, "authentication required", env.Message)
		require.NotEmpty(t, env.Timestamp)
		require.NotEmpty(t, env.TraceID)
		require.NotContains(t, rec.Body.String(), "revoked")
		require.NotContains(t, rec.Body.String(), "malformed")
	}
}

func TestRefreshEndpointRejectsBadBodies(t *testing.T) {
	e := newWebEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/token/refresh",
		bytes.NewReader([]byte("not-json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, e.router, "/v1/token/refresh", refreshRequest{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeEndpointAlwaysAnswersOK(t *testing.T) {
	e := newWebEnv(t)
	ctx := context.Background()

	// Unknown tokens do not reveal themselves.
	rec := postJSON(t, e.router, "/v1/token/revoke",
		revokeRequest{RefreshToken: "never-issued"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A real revocation kills the lineage.
	pair, err := e.svc.GeneratePair(ctx, domain.Principal{
		UserID: "usr-100", Email: "jordan@lydell.law",
	})
	require.NoError(t, err)

	rec = postJSON(t, e.router, "/v1/token/revoke",
		revokeRequest{RefreshToken: pair.RefreshToken, AccessToken: pair.AccessToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := e.svc.Validate(ctx, pair.AccessToken)
	require.False(t, res.OK())
	require.Equal(t, domain.FailureTokenRevoked, res.Failure.Kind)

	_, res, err = e.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Equal(t, domain.FailureTokenRevoked, res.Failure.Kind)
}

func TestAdminRevokeRequiresAdminRole(t *testing.T) {
	e := newWebEnv(t)
	ctx := context.Background()

	target, err := e.svc.GeneratePair(ctx, domain.Principal{
		UserID: "usr-100", Email: "jordan@lydell.law", Roles: []string{"partner"},
	})
	require.NoError(t, err)

	admin, err := e.svc.GeneratePair(ctx, domain.Principal{
		UserID: "usr-1", Email: "ops@caseledger.io", Roles: []string{"admin"},
	})
	require.NoError(t, err)

	path := "/v1/admin/users/usr-100/tokens/revoke"

	// No token.
	rec := postJSON(t, e.router, path, struct{}{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but not an admin.
	rec = postJSON(t, e.router, path, struct{}{}, map[string]string{
		"Authorization": "Bearer " + target.AccessToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Admin succeeds and gets the count.
	rec = postJSON(t, e.router, path, struct{}{}, map[string]string{
		"Authorization": "Bearer " + admin.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 1, body["revoked"])

	// The target's refresh lineage is gone.
	_, res, err := e.svc.Refresh(ctx, target.RefreshToken)
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Equal(t, domain.FailureTokenRevoked, res.Failure.Kind)
}

func TestHealthEndpoints(t *testing.T) {
	e := newWebEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ready HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Registry)

	// With the registry down, validation fails closed, so the instance
	// must report not-ready.
	e.mr.Close()
	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshEndpointRateLimited(t *testing.T) {
	e := newWebEnv(t)

	// The strict profile allows 5 per minute per IP; the sixth attempt
	// within the window gets 429 with a Retry-After.
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = postJSON(t, e.router, "/v1/token/refresh",
			refreshRequest{RefreshToken: fmt.Sprintf("junk-%d", i)}, nil)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.NotEmpty(t, last.Header().Get("Retry-After"))
}
