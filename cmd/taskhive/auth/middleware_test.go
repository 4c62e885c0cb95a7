package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhivehq/taskhive/internal/cache"
	"github.com/taskhivehq/taskhive/internal/oauth"
)

type authFixture struct {
	store    *oauth.MemoryStore
	tokens   *oauth.TokenManager
	registry *oauth.Registry
	cache    *cache.ClientCache
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := oauth.NewMemoryStore()
	cfg := oauth.Config{
		Issuer:          "https://auth.taskhive.test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	require.NoError(t, store.SaveClient(context.Background(), &oauth.Client{
		ClientID: "client-a",
		Name:     "Test App",
		IsActive: true,
	}))
	return &authFixture{
		store:    store,
		tokens:   oauth.NewTokenManager(store, cfg, nil),
		registry: oauth.NewRegistry(store),
		cache:    cache.NewClientCache(time.Minute),
	}
}

func (f *authFixture) issueToken(t *testing.T, userID string, scopes []string) string {
	t.Helper()
	pair, err := f.tokens.Issue(context.Background(), "client-a", userID, scopes, false, "")
	require.NoError(t, err)
	return pair.AccessToken
}

func echoPrincipal(t *testing.T, got **Principal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if principal, ok := FromContext(r.Context()); ok {
			*got = principal
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	f := newAuthFixture(t)
	mw := RequireAuth(f.tokens, f.registry, f.cache)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestMiddlewareRejectsBogusToken(t *testing.T) {
	f := newAuthFixture(t)
	mw := RequireAuth(f.tokens, f.registry, f.cache)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareInjectsPrincipal(t *testing.T) {
	f := newAuthFixture(t)
	mw := RequireAuth(f.tokens, f.registry, f.cache)
	token := f.issueToken(t, "user-7", []string{"read", "write"})

	var got *Principal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(echoPrincipal(t, &got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-7", got.UserID)
	assert.Equal(t, "client-a", got.ClientID)
	assert.Equal(t, []string{"read", "write"}, got.Scopes)
}

func TestMiddlewareRejectsDeactivatedClient(t *testing.T) {
	f := newAuthFixture(t)
	mw := RequireAuth(f.tokens, f.registry, f.cache)
	token := f.issueToken(t, "user-7", []string{"read"})

	client, err := f.registry.Get(context.Background(), "client-a")
	require.NoError(t, err)
	client.IsActive = false
	require.NoError(t, f.store.SaveClient(context.Background(), client))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
	f := newAuthFixture(t)
	mw := OptionalAuth(f.tokens, f.registry, f.cache)

	var got *Principal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.Handler(echoPrincipal(t, &got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, got)
}

func TestRequireScopes(t *testing.T) {
	f := newAuthFixture(t)
	mw := RequireAuth(f.tokens, f.registry, f.cache)
	token := f.issueToken(t, "user-7", []string{"read"})

	handler := mw.HandlerFunc(RequireScopes(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, "write"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	allowed := mw.HandlerFunc(RequireScopes(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, "read"))
	rec = httptest.NewRecorder()
	allowed(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractBearerToken(req))

	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", ExtractBearerToken(req))

	req.Header.Set("Authorization", "bearer abc123")
	assert.Equal(t, "abc123", ExtractBearerToken(req))

	req.Header.Set("Authorization", "Basic abc123")
	assert.Empty(t, ExtractBearerToken(req))
}

func TestServiceTokenResolver(t *testing.T) {
	t.Setenv("TASKHIVE_SERVICE_TOKEN", "svc-secret")
	resolver := NewServiceTokenResolver(nil)

	req := httptest.NewRequest(http.MethodGet, "/?user_id=user-3", nil)
	req.Header.Set("Authorization", "Bearer svc-secret")
	userID, ok := resolver.Resolve(req)
	require.True(t, ok)
	assert.Equal(t, "user-3", userID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer svc-secret")
	userID, ok = resolver.Resolve(req)
	require.True(t, ok)
	assert.Equal(t, "service_account", userID)

	req.Header.Set("Authorization", "Bearer wrong")
	_, ok = resolver.Resolve(req)
	assert.False(t, ok)
}
