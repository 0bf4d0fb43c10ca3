package middleware

import "context"

// ContextKey is the type of request-scoped values set by this package.
type ContextKey string

// UserIDCtxKey holds the authenticated user id.
const UserIDCtxKey = ContextKey("user_id")

// UserIDFromContext returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UserIDCtxKey).(string)
	return id
}

// WithUserID returns ctx carrying the user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDCtxKey, userID)
}
