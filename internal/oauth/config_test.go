package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvRequiresIssuer(t *testing.T) {
	t.Setenv("TASKHIVE_OAUTH_ISSUER", "")
	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("TASKHIVE_OAUTH_ISSUER", "https://auth.taskhive.io/")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://auth.taskhive.io", cfg.Issuer)
	assert.Equal(t, "https://auth.taskhive.io/device", cfg.VerificationURI)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.AuthCodeTTL)
	assert.Equal(t, 30*time.Minute, cfg.DeviceCodeTTL)
	assert.Equal(t, 5, cfg.DeviceInterval)
	assert.Equal(t, "read", cfg.DefaultScope)
	assert.True(t, cfg.RequirePKCEForPublicClients)
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("TASKHIVE_OAUTH_ISSUER", "https://auth.taskhive.io")
	t.Setenv("TASKHIVE_OAUTH_VERIFICATION_URI", "https://taskhive.io/activate")
	t.Setenv("TASKHIVE_OAUTH_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("TASKHIVE_OAUTH_DEVICE_INTERVAL", "10")
	t.Setenv("TASKHIVE_OAUTH_REQUIRE_PKCE_PUBLIC", "false")
	t.Setenv("TASKHIVE_OAUTH_DEFAULT_SCOPE", "tasks")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://taskhive.io/activate", cfg.VerificationURI)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 10, cfg.DeviceInterval)
	assert.False(t, cfg.RequirePKCEForPublicClients)
	assert.Equal(t, "tasks", cfg.DefaultScope)
}
