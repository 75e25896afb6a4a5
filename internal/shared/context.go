package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session state in context.
func ContextWithSession(ctx context.Context, sess SessionState) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session state from context.
func SessionFromContext(ctx context.Context) SessionState {
	sess, _ := ctx.Value(sessionContextKey{}).(SessionState)
	return sess
}
