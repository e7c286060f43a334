package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the login session for the request; the identity
// hydration middleware reads it back to resolve the principal.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request's login session, nil when anonymous.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
