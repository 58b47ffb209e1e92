package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/caseledger/auth/internal/auth/registry"
	"github.com/caseledger/auth/internal/auth/service"
	"github.com/caseledger/auth/internal/auth/store"
	"github.com/caseledger/auth/pkg/httpx"
	"github.com/caseledger/auth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	registry registry.Registry

	TokenService *service.TokenService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	reg registry.Registry,
	svc *service.TokenService,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		registry:     reg,
		TokenService: svc,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerToken()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerToken() {
	// POST /token/refresh - strict rate limit by IP. Refresh tokens are
	// single-use under rotation, so legitimate traffic here is sparse.
	refreshHandler := &RefreshHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /token/revoke - moderate rate limit. Always answers 200 so the
	// endpoint can't be used to probe token existence.
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/token/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	// POST /admin/users/{id}/tokens/revoke - admin-only kill switch.
	h := &AdminRevokeHandler{TokenService: r.TokenService}
	secured := httpx.Chain(h,
		Authenticate(r.TokenService),
		RequireAuthenticated(),
		RequireRole("admin"),
		httpx.RateLimitMiddleware(httpx.ModerateLimit, httpx.UserIDKeyExtractor),
	)

	r.Mux.Handle("POST /v1/admin/users/{id}/tokens/revoke", secured)
}

func (r *Router) registerSystem() {
	// Health probes - lenient limits, monitors poll these.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.registry),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
