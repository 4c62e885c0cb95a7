package auth

import (
	"net/http"
	"os"

	"github.com/taskhivehq/taskhive/internal/oauth"
)

// BearerResolver resolves the current user from a bearer token. It is the
// default Resolver wiring when the surrounding application authenticates
// its UI traffic with tokens from this server.
type BearerResolver struct {
	tokens *oauth.TokenManager
}

// NewBearerResolver creates a bearer-backed principal resolver.
func NewBearerResolver(tokens *oauth.TokenManager) *BearerResolver {
	return &BearerResolver{tokens: tokens}
}

// Resolve returns the user bound to the request's bearer token. Tokens
// without a user (client_credentials) do not resolve a principal: consent
// and device approval need a human.
func (b *BearerResolver) Resolve(r *http.Request) (string, bool) {
	token := ExtractBearerToken(r)
	if token == "" {
		return "", false
	}
	record, err := b.tokens.Validate(r.Context(), token)
	if err != nil || record.UserID == "" {
		return "", false
	}
	return record.UserID, true
}

// ServiceTokenResolver trusts a static service token from the environment
// and lets it impersonate a user via the user_id query parameter. It exists
// for development and internal service calls, layered in front of another
// resolver.
type ServiceTokenResolver struct {
	next Resolver
}

// NewServiceTokenResolver wraps next with the static-token shortcut.
func NewServiceTokenResolver(next Resolver) *ServiceTokenResolver {
	return &ServiceTokenResolver{next: next}
}

func (s *ServiceTokenResolver) Resolve(r *http.Request) (string, bool) {
	serviceToken := os.Getenv("TASKHIVE_SERVICE_TOKEN")
	if serviceToken != "" && oauth.ConstantTimeEquals(ExtractBearerToken(r), serviceToken) {
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			return userID, true
		}
		return "service_account", true
	}
	if s.next != nil {
		return s.next.Resolve(r)
	}
	return "", false
}
