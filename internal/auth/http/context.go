package http

import (
	"context"

	"github.com/caseledger/auth/internal/auth/domain"
)

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(domain.Principal)
	return p, ok
}
