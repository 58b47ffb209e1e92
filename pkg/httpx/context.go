package httpx

import "context"

type ctxKey string

// CtxKeyUserID carries the authenticated user's id. Set by the request
// authenticator; consumed by rate limiting and handlers.
const CtxKeyUserID ctxKey = "user_id"

// WithUserID stores the authenticated user id in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, userID)
}

// UserIDFromContext returns the authenticated user id, or "" when the
// request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}
