package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/caseledger/auth/internal/auth/service"
	"github.com/caseledger/auth/pkg/httpx"
	"github.com/caseledger/auth/pkg/slogx"
)

var errUnsupportedMediaType = errors.New("unsupported media type")

// RefreshHandler serves POST /v1/token/refresh: consume a refresh token,
// return a fresh access+refresh pair. The presented token is single-use;
// replaying it revokes its whole rotation family.
type RefreshHandler struct {
	TokenService *service.TokenService
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		WriteBadRequest(w, "refreshToken is required")
		return
	}

	pair, res, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		log.Error("refresh failed", "err", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "temporarily unavailable",
		})
		return
	}
	if !res.OK() {
		traceID := WriteUnauthorized(w)
		if res.Failure.ShouldLog() {
			log.Warn("refresh rejected",
				"kind", string(res.Failure.Kind),
				"subject", res.Failure.Subject,
				"trace_id", traceID,
			)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}

// RevokeHandler serves POST /v1/token/revoke. It always returns 200, even
// for unknown or already-dead tokens, so the endpoint cannot be used to
// probe which tokens exist.
type RevokeHandler struct {
	TokenService *service.TokenService
}

type revokeRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	if err := h.TokenService.Revoke(ctx, req.RefreshToken, req.AccessToken); err != nil {
		// Still 200: revocation is idempotent from the caller's view.
		log.Warn("revoke failed", "err", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

// AdminRevokeHandler serves POST /v1/admin/users/{id}/tokens/revoke: the
// administrative kill switch for a compromised account. Every active refresh
// token of the user is revoked; outstanding access tokens expire naturally.
type AdminRevokeHandler struct {
	TokenService *service.TokenService
}

func (h *AdminRevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := r.PathValue("id")
	if userID == "" {
		WriteBadRequest(w, "user id is required")
		return
	}

	n, err := h.TokenService.RevokeUser(ctx, userID)
	if err != nil {
		log.Error("admin revoke failed", "err", err, "user_id", userID)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "temporarily unavailable",
		})
		return
	}

	admin, _ := PrincipalFromContext(ctx)
	log.Info("user tokens revoked by admin",
		"user_id", userID,
		"revoked", n,
		"admin_id", admin.UserID,
	)

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func decodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/json") {
		return errUnsupportedMediaType
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
