package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func errorAs(err error, target interface{}) bool {
	return errors.As(err, target)
}

func testConfig() Config {
	return Config{
		Issuer:                      "https://auth.taskhive.test",
		VerificationURI:             "https://auth.taskhive.test/device",
		AccessTokenTTL:              time.Hour,
		RefreshTokenTTL:             30 * 24 * time.Hour,
		AuthCodeTTL:                 10 * time.Minute,
		AuthRequestTTL:              15 * time.Minute,
		DeviceCodeTTL:               30 * time.Minute,
		DeviceInterval:              5,
		DefaultScope:                "read",
		RequirePKCEForPublicClients: true,
	}
}

type testClientOpts struct {
	public bool
	grants []string
	scopes []string
	uris   []string
}

// seedTestClient inserts a client directly, hashing the secret at MinCost so
// the suite stays fast.
func seedTestClient(t *testing.T, store Storage, clientID, secret string, opts testClientOpts) *Client {
	t.Helper()

	if opts.grants == nil {
		opts.grants = []string{"authorization_code", "refresh_token"}
	}
	if opts.scopes == nil {
		opts.scopes = []string{"read", "write"}
	}
	if opts.uris == nil {
		opts.uris = []string{"https://app.taskhive.test/callback"}
	}

	var hash string
	if !opts.public {
		h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(h)
	}

	client := &Client{
		ClientID:         clientID,
		ClientSecretHash: hash,
		OwnerID:          "user-owner",
		Name:             "Test App",
		RedirectURIs:     opts.uris,
		GrantTypes:       opts.grants,
		Scopes:           opts.scopes,
		IsActive:         true,
		IsPublic:         opts.public,
	}
	require.NoError(t, store.SaveClient(context.Background(), client))
	return client
}
