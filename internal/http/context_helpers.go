package httpx

import (
	"context"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
)

// authContextKey is an unexported context key type to avoid collisions across packages.
type authContextKey struct{}

// AuthContext is the identity attached to one request. Its presence in a context means
// identity restoration already ran for the request, whether or not it found anyone.
type AuthContext struct {
	Identity   domainauth.Identity
	Authorized bool
}

// Authenticated reports whether the request carries a usable identity.
func (a AuthContext) Authenticated() bool { return a.Identity.Valid() }

// SetAuthContext returns a child context that carries ac.
func SetAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// GetAuthContext returns the request identity and whether restoration has run.
func GetAuthContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(AuthContext)
	return ac, ok
}

// CurrentIdentity returns the authenticated identity, if any.
func CurrentIdentity(ctx context.Context) (domainauth.Identity, bool) {
	ac, ok := GetAuthContext(ctx)
	if !ok || !ac.Authenticated() {
		return domainauth.Identity{}, false
	}
	return ac.Identity, true
}
