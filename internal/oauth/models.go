package oauth

import "time"

// DeviceStatus is the state of a device authorization. Transitions are
// one-way: pending may become approved or denied, nothing else moves.
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusApproved DeviceStatus = "approved"
	DeviceStatusDenied   DeviceStatus = "denied"
)

// Client represents an OAuth client registration.
type Client struct {
	ClientID         string
	ClientSecretHash string
	OwnerID          string
	Name             string
	RedirectURIs     []string
	GrantTypes       []string
	Scopes           []string
	IsActive         bool
	IsPublic         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *Client) AllowsGrant(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// AllowsRedirect reports whether redirectURI exactly matches a registered
// URI. Exact string comparison only; prefix or wildcard matching would open
// code theft via sibling paths.
func (c *Client) AllowsRedirect(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// AuthRequest is a validated /authorize GET persisted between the consent
// page render and the consent POST. Short TTL, shared store.
type AuthRequest struct {
	RequestID           string    `json:"request_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// AuthorizationCode is a single-use code record. Only the SHA-256 digest of
// the code is stored. Used flips exactly once, atomically, at redemption.
type AuthorizationCode struct {
	CodeDigest          string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Used                bool
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// DeviceCode is an RFC 8628 device authorization record. The machine-facing
// device code is stored as a digest; the human-facing user code is stored
// verbatim so it can be looked up from the verification page.
type DeviceCode struct {
	DeviceCodeDigest string
	UserCode         string
	ClientID         string
	UserID           string
	Scopes           []string
	Status           DeviceStatus
	Interval         int
	LastPollAt       time.Time
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Token is an access token record with optional co-located refresh token.
// A pair issued together shares this one record and one lifecycle.
type Token struct {
	ID               string
	AccessDigest     string
	RefreshDigest    string
	ClientID         string
	UserID           string
	Scopes           []string
	CodeDigest       string
	Revoked          bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// TokenPair carries the plaintext credentials back to the caller. Plaintext
// exists only in this value; the store keeps digests.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Scopes       []string
}
