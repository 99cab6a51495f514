package auth

import "context"

type identityContextKey struct{}
type profileContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity stored by the gate, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v.ID == "" {
		return Identity{}, false
	}
	return v, true
}

// UserIDFromContext extracts the authenticated identity id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.ID, ok
}

// ContextWithProfile attaches the caller's loaded profile.
func ContextWithProfile(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, &p)
}

// ProfileFromContext returns the profile attached by the administrator gate.
func ProfileFromContext(ctx context.Context) (Profile, bool) {
	if ctx == nil {
		return Profile{}, false
	}
	v, ok := ctx.Value(profileContextKey{}).(*Profile)
	if !ok || v == nil {
		return Profile{}, false
	}
	return *v, true
}
