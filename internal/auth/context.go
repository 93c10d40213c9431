// ABOUTME: Identity of the caller, carried through request handlers via context
// ABOUTME: Answers who is acting and whether they may change the server

package auth

import (
	"context"
	"slices"

	"github.com/2389/warden/internal/store"
)

// AnonymousActor is the audit actor for requests made with auth disabled.
const AnonymousActor = "anonymous"

// AuthContext is the principal HTTPAuthMiddleware admitted.
type AuthContext struct {
	PrincipalID   string
	PrincipalType string   // "operator" or "service"
	Roles         []string // most privileged first
}

// IsAdmin reports whether any of the principal's roles may mutate.
func (a *AuthContext) IsAdmin() bool {
	return slices.ContainsFunc(a.Roles, func(r string) bool {
		return store.RoleName(r).CanMutate()
	})
}

// Actor names the caller in audit entries. It is safe on a nil receiver,
// which is what FromContext returns when auth is disabled.
func (a *AuthContext) Actor() string {
	if a == nil || a.PrincipalID == "" {
		return AnonymousActor
	}
	return a.PrincipalID
}

type authContextKey struct{}

// WithAuth attaches a to ctx.
func WithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, a)
}

// FromContext returns the caller, or nil for unauthenticated requests.
func FromContext(ctx context.Context) *AuthContext {
	a, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return a
}
