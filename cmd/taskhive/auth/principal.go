package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated identity attached to a request after
// bearer validation. UserID is empty for machine-to-machine tokens.
type Principal struct {
	UserID   string
	ClientID string
	Scopes   []string
}

type contextKey string

// PrincipalContextKey is where middleware stores the Principal.
const PrincipalContextKey contextKey = "taskhive.principal"

// FromContext extracts the request principal, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return principal, ok
}

// ExtractBearerToken pulls the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Resolver is the contract the surrounding application fulfills to tell the
// OAuth handlers who the current user is during consent and device
// approval. The subsystem never implements login itself.
type Resolver interface {
	Resolve(r *http.Request) (userID string, ok bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(r *http.Request) (string, bool)

func (f ResolverFunc) Resolve(r *http.Request) (string, bool) {
	return f(r)
}
