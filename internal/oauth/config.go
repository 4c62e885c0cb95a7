package oauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds authorization-server settings.
type Config struct {
	Issuer                      string
	VerificationURI             string
	AccessTokenTTL              time.Duration
	RefreshTokenTTL             time.Duration
	AuthCodeTTL                 time.Duration
	AuthRequestTTL              time.Duration
	DeviceCodeTTL               time.Duration
	DeviceInterval              int
	DefaultScope                string
	RequirePKCEForPublicClients bool
	SeedFile                    string
}

// LoadConfigFromEnv loads OAuth config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	issuer := strings.TrimSpace(os.Getenv("TASKHIVE_OAUTH_ISSUER"))
	if issuer == "" {
		return Config{}, fmt.Errorf("TASKHIVE_OAUTH_ISSUER is required")
	}
	issuer = strings.TrimRight(issuer, "/")

	verificationURI := strings.TrimSpace(os.Getenv("TASKHIVE_OAUTH_VERIFICATION_URI"))
	if verificationURI == "" {
		verificationURI = issuer + "/device"
	}

	defaultScope := strings.TrimSpace(os.Getenv("TASKHIVE_OAUTH_DEFAULT_SCOPE"))
	if defaultScope == "" {
		defaultScope = "read"
	}

	return Config{
		Issuer:                      issuer,
		VerificationURI:             verificationURI,
		AccessTokenTTL:              parseDurationEnv("TASKHIVE_OAUTH_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:             parseDurationEnv("TASKHIVE_OAUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:                 parseDurationEnv("TASKHIVE_OAUTH_AUTH_CODE_TTL", 10*time.Minute),
		AuthRequestTTL:              parseDurationEnv("TASKHIVE_OAUTH_AUTH_REQUEST_TTL", 15*time.Minute),
		DeviceCodeTTL:               parseDurationEnv("TASKHIVE_OAUTH_DEVICE_CODE_TTL", 30*time.Minute),
		DeviceInterval:              parseIntEnv("TASKHIVE_OAUTH_DEVICE_INTERVAL", 5),
		DefaultScope:                defaultScope,
		RequirePKCEForPublicClients: parseBoolEnv("TASKHIVE_OAUTH_REQUIRE_PKCE_PUBLIC", true),
		SeedFile:                    strings.TrimSpace(os.Getenv("TASKHIVE_OAUTH_SEED_FILE")),
	}, nil
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
