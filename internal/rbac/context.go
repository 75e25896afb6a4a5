package rbac

import "context"

type profileContextKey struct{}

// ContextWithProfile stores the resolved profile in context.
func ContextWithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, p)
}

// ProfileFromContext extracts the resolved profile; nil when unauthenticated.
func ProfileFromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(profileContextKey{}).(*Profile)
	return p
}
