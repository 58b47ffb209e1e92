package http

import (
	"net/http"
	"strings"

	"github.com/caseledger/auth/internal/auth/service"
	"github.com/caseledger/auth/pkg/httpx"
	"github.com/caseledger/auth/pkg/slogx"
)

// BearerToken extracts the bearer token from the Authorization header.
// Returns "" when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate validates the bearer token on every request that carries one
// and attaches the resulting principal to the context.
//
// A request without a token passes through unauthenticated; enforcement is
// the job of RequireAuthenticated on protected routes. A request with a bad
// token is rejected here with the generic envelope, and the real failure
// kind goes to the audit log only.
func Authenticate(svc *service.TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := svc.Validate(ctx, token)
			if !res.OK() {
				traceID := WriteUnauthorized(w)
				if res.Failure.ShouldLog() {
					// The raw token never appears in logs, only the
					// classification and (when known) the subject.
					log.Warn("authentication failed",
						"kind", string(res.Failure.Kind),
						"subject", res.Failure.Subject,
						"missing_fields", res.Failure.MissingFields,
						"trace_id", traceID,
						"path", r.URL.Path,
					)
				}
				return
			}

			ctx = WithPrincipal(ctx, res.Principal)
			ctx = httpx.WithUserID(ctx, res.Principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests that reached the handler without a
// principal, which covers the missing-token case Authenticate lets through.
func RequireAuthenticated() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated requests whose principal lacks the role.
// The response is the same generic envelope; role requirements are not
// advertised to callers either.
func RequireRole(role string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !p.HasRole(role) {
				WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
