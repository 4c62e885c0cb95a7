package oauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegistryCreateConfidentialClient(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	client, secret, err := registry.Create(ctx, "user-1", ClientInput{
		Name:         "Task Board",
		RedirectURIs: []string{"https://board.example.com/cb"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, secret)
	assert.NotEmpty(t, client.ClientSecretHash)
	assert.NotEqual(t, secret, client.ClientSecretHash)
	assert.True(t, client.IsActive)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, client.GrantTypes)
	assert.Equal(t, []string{"read"}, client.Scopes)

	// The stored hash must verify the returned secret.
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)))
}

func TestRegistryCreatePublicClientHasNoSecret(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)

	client, secret, err := registry.Create(context.Background(), "user-1", ClientInput{
		Name:         "CLI",
		RedirectURIs: []string{"http://localhost:8910/cb"},
		IsPublic:     true,
	})
	require.NoError(t, err)
	assert.Empty(t, secret)
	assert.Empty(t, client.ClientSecretHash)
}

func TestRegistryCreateValidation(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	_, _, err := registry.Create(ctx, "user-1", ClientInput{RedirectURIs: []string{"https://a.example.com/cb"}})
	requireOAuthError(t, err, ErrCodeInvalidRequest)

	_, _, err = registry.Create(ctx, "user-1", ClientInput{Name: "X"})
	requireOAuthError(t, err, ErrCodeInvalidRequest)

	_, _, err = registry.Create(ctx, "user-1", ClientInput{
		Name:         "X",
		RedirectURIs: []string{"https://*.example.com/cb"},
	})
	requireOAuthError(t, err, ErrCodeInvalidRequest)
}

func TestRegistryAuthenticate(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	seedTestClient(t, store, "client-a", "s3cret", testClientOpts{})

	got, err := registry.Authenticate(ctx, "client-a", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "client-a", got.ClientID)

	// Missing client, wrong secret, and empty secret are indistinguishable.
	for _, tc := range []struct{ id, secret string }{
		{"client-a", "wrong"},
		{"client-a", ""},
		{"no-such-client", "s3cret"},
		{"", "s3cret"},
	} {
		_, err := registry.Authenticate(ctx, tc.id, tc.secret)
		requireOAuthError(t, err, ErrCodeInvalidClient)
	}
}

func TestRegistryAuthenticatePublicClientByIDOnly(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)

	seedTestClient(t, store, "public-cli", "", testClientOpts{public: true})

	got, err := registry.Authenticate(context.Background(), "public-cli", "")
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
}

func TestRegistryAuthenticateInactiveClient(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	client := seedTestClient(t, store, "client-a", "s3cret", testClientOpts{})
	client.IsActive = false
	require.NoError(t, store.SaveClient(ctx, client))

	_, err := registry.Authenticate(ctx, "client-a", "s3cret")
	requireOAuthError(t, err, ErrCodeInvalidClient)
}

func TestRegistryUpdateOwnership(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	seedTestClient(t, store, "client-a", "s3cret", testClientOpts{})

	name := "Renamed"
	_, err := registry.Update(ctx, "client-a", "someone-else", ClientPatch{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := registry.Update(ctx, "client-a", "user-owner", ClientPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestRegistryDeactivateIsSoft(t *testing.T) {
	store := NewMemoryStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	seedTestClient(t, store, "client-a", "s3cret", testClientOpts{})

	require.NoError(t, registry.Deactivate(ctx, "client-a", "user-owner"))

	client, err := registry.Get(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, client.IsActive)
}

func TestValidateRedirectURI(t *testing.T) {
	valid := []string{
		"https://app.example.com/callback",
		"http://localhost:3000/cb",
		"http://127.0.0.1/cb",
	}
	for _, uri := range valid {
		assert.NoError(t, ValidateRedirectURI(uri), uri)
	}

	invalid := []string{
		"http://app.example.com/callback",
		"https://*.example.com/cb",
		"https://app.example.com/cb#frag",
		"not-a-url",
		"/relative/path",
	}
	for _, uri := range invalid {
		assert.Error(t, ValidateRedirectURI(uri), uri)
	}
}

func requireOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	oe, ok := AsError(err)
	require.True(t, ok, "expected protocol error, got %v", err)
	require.Equal(t, code, oe.Code)
}
