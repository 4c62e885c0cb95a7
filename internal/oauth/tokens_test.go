package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssueAndValidate(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, true, "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, 3600, pair.ExpiresIn)

	record, err := manager.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "client-a", record.ClientID)
	assert.Equal(t, "user-7", record.UserID)
	assert.Equal(t, []string{"read"}, record.Scopes)

	// Only digests are stored.
	assert.NotEqual(t, pair.AccessToken, record.AccessDigest)
	assert.Equal(t, HashToken(pair.AccessToken), record.AccessDigest)
}

func TestTokenIssueWithoutRefresh(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)

	pair, err := manager.Issue(context.Background(), "client-a", "", []string{"read"}, false, "")
	require.NoError(t, err)
	assert.Empty(t, pair.RefreshToken)
}

func TestTokenValidateRejectsGarbage(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	_, err := manager.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = manager.Validate(ctx, "not-a-real-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenValidateRejectsExpired(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, false, "")
	require.NoError(t, err)

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRevokeKillsPair(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, true, "")
	require.NoError(t, err)

	// Revoking by refresh token invalidates the access token too.
	require.NoError(t, manager.Revoke(ctx, pair.RefreshToken))
	_, err = manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown and already-revoked tokens are silent no-ops.
	assert.NoError(t, manager.Revoke(ctx, pair.RefreshToken))
	assert.NoError(t, manager.Revoke(ctx, "unknown-token"))
}

func TestTokenRevokeForClientIgnoresForeignTokens(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, false, "")
	require.NoError(t, err)

	// A different client presenting the token must not revoke it.
	require.NoError(t, manager.RevokeForClient(ctx, pair.AccessToken, "client-b"))
	_, err = manager.Validate(ctx, pair.AccessToken)
	assert.NoError(t, err)

	require.NoError(t, manager.RevokeForClient(ctx, pair.AccessToken, "client-a"))
	_, err = manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRotation(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()
	client := &Client{ClientID: "client-a"}

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, true, "")
	require.NoError(t, err)

	next, err := manager.Rotate(ctx, pair.RefreshToken, client)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.Equal(t, []string{"read"}, next.Scopes)

	// The old pair is dead: access fails validation, refresh fails rotation.
	_, err = manager.Validate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.Rotate(ctx, pair.RefreshToken, client)
	requireOAuthError(t, err, ErrCodeInvalidGrant)

	// The new pair works.
	_, err = manager.Validate(ctx, next.AccessToken)
	assert.NoError(t, err)
}

func TestTokenRotationRejectsWrongClient(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, true, "")
	require.NoError(t, err)

	_, err = manager.Rotate(ctx, pair.RefreshToken, &Client{ClientID: "client-b"})
	requireOAuthError(t, err, ErrCodeInvalidGrant)

	// The failed attempt must not have consumed the token.
	_, err = manager.Rotate(ctx, pair.RefreshToken, &Client{ClientID: "client-a"})
	assert.NoError(t, err)
}

func TestTokenRotationRejectsExpiredRefresh(t *testing.T) {
	store := NewMemoryStore()
	manager := NewTokenManager(store, testConfig(), nil)
	ctx := context.Background()

	pair, err := manager.Issue(ctx, "client-a", "user-7", []string{"read"}, true, "")
	require.NoError(t, err)

	manager.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = manager.Rotate(ctx, pair.RefreshToken, &Client{ClientID: "client-a"})
	requireOAuthError(t, err, ErrCodeInvalidGrant)
}
