package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/taskhivehq/taskhive/internal/cache"
	"github.com/taskhivehq/taskhive/internal/oauth"
)

// Middleware validates bearer tokens against the token store and injects
// the resolved Principal. This is the resource-server half of the
// subsystem: the rest of the application gets current_user/current_client
// from here.
type Middleware struct {
	tokens   *oauth.TokenManager
	registry *oauth.Registry
	clients  *cache.ClientCache
	optional bool
}

// NewMiddleware creates bearer-token middleware.
func NewMiddleware(tokens *oauth.TokenManager, registry *oauth.Registry, clients *cache.ClientCache, optional bool) *Middleware {
	return &Middleware{
		tokens:   tokens,
		registry: registry,
		clients:  clients,
		optional: optional,
	}
}

// RequireAuth creates middleware that rejects unauthenticated requests.
func RequireAuth(tokens *oauth.TokenManager, registry *oauth.Registry, clients *cache.ClientCache) *Middleware {
	return NewMiddleware(tokens, registry, clients, false)
}

// OptionalAuth creates middleware that passes unauthenticated requests
// through without a principal.
func OptionalAuth(tokens *oauth.TokenManager, registry *oauth.Registry, clients *cache.ClientCache) *Middleware {
	return NewMiddleware(tokens, registry, clients, true)
}

// Handler wraps an HTTP handler with bearer validation.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := ExtractBearerToken(r)
		if token == "" {
			if !m.optional {
				unauthorized(w, "missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.resolve(r.Context(), token)
		if err != nil {
			if !m.optional {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HandlerFunc wraps an HTTP handler function with bearer validation.
func (m *Middleware) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Handler(next).ServeHTTP(w, r)
	}
}

func (m *Middleware) resolve(ctx context.Context, token string) (*Principal, error) {
	record, err := m.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	// Tokens of a deactivated client are dead even before their expiry.
	client, ok := m.clients.Get(record.ClientID)
	if !ok {
		client, err = m.registry.Get(ctx, record.ClientID)
		if err != nil {
			return nil, err
		}
		m.clients.Set(client)
	}
	if !client.IsActive {
		return nil, errors.New("client deactivated")
	}

	return &Principal{
		UserID:   record.UserID,
		ClientID: record.ClientID,
		Scopes:   record.Scopes,
	}, nil
}

// RequireScopes wraps a handler and rejects principals whose granted scopes
// do not cover all of required.
func RequireScopes(next http.HandlerFunc, required ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := FromContext(r.Context())
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		if !oauth.ScopesContain(principal.Scopes, required) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"insufficient_scope"}`))
			return
		}
		next(w, r)
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"` + description + `"}`))
}
