package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/taskhivehq/taskhive/internal/events"
)

// Grant types handled by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantDeviceCode        = "device_code"

	// RFC 8628 wire name for the device grant.
	grantDeviceCodeURN = "urn:ietf:params:oauth:grant-type:device_code"
)

// TokenRequest carries the /token form parameters.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	DeviceCode   string
	Scope        string
}

// TokenResponse is the success shape of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Exchanger is the token endpoint: it dispatches on grant_type and turns
// codes, refresh tokens, client credentials, and device codes into token
// pairs.
type Exchanger struct {
	store    Storage
	registry *Registry
	tokens   *TokenManager
	cfg      Config
	events   events.Publisher
	now      func() time.Time
}

// NewExchanger creates a token-endpoint exchanger.
func NewExchanger(store Storage, registry *Registry, tokens *TokenManager, cfg Config, publisher events.Publisher) *Exchanger {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Exchanger{
		store:    store,
		registry: registry,
		tokens:   tokens,
		cfg:      cfg,
		events:   publisher,
		now:      time.Now,
	}
}

// Exchange processes one token request.
func (e *Exchanger) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return e.exchangeAuthorizationCode(ctx, req)
	case GrantRefreshToken:
		return e.exchangeRefreshToken(ctx, req)
	case GrantClientCredentials:
		return e.exchangeClientCredentials(ctx, req)
	case GrantDeviceCode, grantDeviceCodeURN:
		return e.exchangeDeviceCode(ctx, req)
	default:
		return nil, NewError(ErrCodeUnsupportedGrantType, "unsupported grant_type")
	}
}

func (e *Exchanger) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := e.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, NewError(ErrCodeUnauthorizedClient, "client may not use the authorization_code grant")
	}
	if req.Code == "" {
		return nil, NewError(ErrCodeInvalidRequest, "code is required")
	}

	invalid := NewError(ErrCodeInvalidGrant, "invalid authorization code")
	now := e.now()

	codeDigest := HashToken(req.Code)
	code, replayed, err := e.store.RedeemAuthCode(ctx, codeDigest)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	if replayed {
		// A second presentation of a still-live code means the first one
		// may have been intercepted. Kill everything it produced.
		if now.Before(code.ExpiresAt) {
			if _, revokeErr := e.store.RevokeTokensForCode(ctx, codeDigest); revokeErr == nil {
				e.events.Publish(ctx, events.Event{
					Type:      events.TypeCodeReplayed,
					ClientID:  code.ClientID,
					UserID:    code.UserID,
					GrantType: GrantAuthorizationCode,
				})
			}
		}
		return nil, invalid
	}

	if !now.Before(code.ExpiresAt) {
		return nil, invalid
	}
	if code.ClientID != client.ClientID {
		return nil, invalid
	}
	if req.RedirectURI == "" || req.RedirectURI != code.RedirectURI {
		return nil, invalid
	}
	if err := verifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, err
	}

	withRefresh := client.AllowsGrant(GrantRefreshToken)
	pair, err := e.tokens.Issue(ctx, client.ClientID, code.UserID, code.Scopes, withRefresh, codeDigest)
	if err != nil {
		return nil, err
	}
	return tokenResponse(pair), nil
}

func (e *Exchanger) exchangeRefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := e.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(GrantRefreshToken) {
		return nil, NewError(ErrCodeUnauthorizedClient, "client may not use the refresh_token grant")
	}
	if req.RefreshToken == "" {
		return nil, NewError(ErrCodeInvalidRequest, "refresh_token is required")
	}

	pair, err := e.tokens.Rotate(ctx, req.RefreshToken, client)
	if err != nil {
		return nil, err
	}
	return tokenResponse(pair), nil
}

func (e *Exchanger) exchangeClientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := e.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if client.IsPublic {
		// Machine-to-machine access needs a verifiable secret.
		return nil, NewError(ErrCodeInvalidClient, "client authentication failed")
	}
	if !client.AllowsGrant(GrantClientCredentials) {
		return nil, NewError(ErrCodeUnauthorizedClient, "client may not use the client_credentials grant")
	}

	scopes, err := NegotiateScope(req.Scope, client.Scopes, e.cfg.DefaultScope)
	if err != nil {
		return nil, err
	}

	// No user, no refresh token: the client can always re-authenticate.
	pair, err := e.tokens.Issue(ctx, client.ClientID, "", scopes, false, "")
	if err != nil {
		return nil, err
	}
	return tokenResponse(pair), nil
}

func (e *Exchanger) exchangeDeviceCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := e.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(GrantDeviceCode) {
		return nil, NewError(ErrCodeUnauthorizedClient, "client may not use the device_code grant")
	}
	if req.DeviceCode == "" {
		return nil, NewError(ErrCodeInvalidRequest, "device_code is required")
	}

	invalid := NewError(ErrCodeInvalidGrant, "invalid device code")
	now := e.now()

	digest := HashToken(req.DeviceCode)
	code, err := e.store.GetDeviceCode(ctx, digest)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if code.ClientID != client.ClientID {
		return nil, invalid
	}

	if !now.Before(code.ExpiresAt) {
		_ = e.store.DeleteDeviceCode(ctx, digest)
		return nil, NewError(ErrCodeExpiredToken, "device code expired")
	}

	switch code.Status {
	case DeviceStatusDenied:
		_ = e.store.DeleteDeviceCode(ctx, digest)
		return nil, NewError(ErrCodeAccessDenied, "the user denied the request")

	case DeviceStatusPending:
		if now.Sub(code.LastPollAt) < time.Duration(code.Interval)*time.Second {
			// Punish the eager poller: bump the stored interval.
			_ = e.store.TouchDeviceCodePoll(ctx, digest, now, code.Interval+5)
			return nil, NewError(ErrCodeSlowDown, "polling too frequently")
		}
		if err := e.store.TouchDeviceCodePoll(ctx, digest, now, code.Interval); err != nil {
			return nil, err
		}
		return nil, NewError(ErrCodeAuthorizationPending, "authorization is pending")

	case DeviceStatusApproved:
		// Consuming deletes the record; concurrent pollers race for one
		// winner and every loser sees invalid_grant.
		consumed, err := e.store.ConsumeDeviceCode(ctx, digest)
		if errors.Is(err, ErrNotFound) {
			return nil, invalid
		}
		if err != nil {
			return nil, err
		}

		withRefresh := client.AllowsGrant(GrantRefreshToken)
		pair, err := e.tokens.Issue(ctx, client.ClientID, consumed.UserID, consumed.Scopes, withRefresh, "")
		if err != nil {
			return nil, err
		}
		return tokenResponse(pair), nil

	default:
		return nil, invalid
	}
}

// verifyPKCE recomputes the challenge from the presented verifier. Both
// methods compare in constant time.
func verifyPKCE(code *AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return NewError(ErrCodeInvalidGrant, "code_verifier is required")
	}

	var derived string
	switch code.CodeChallengeMethod {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case "plain", "":
		derived = verifier
	default:
		return NewError(ErrCodeInvalidGrant, "unsupported code_challenge_method")
	}

	if !ConstantTimeEquals(derived, code.CodeChallenge) {
		return NewError(ErrCodeInvalidGrant, "code_verifier does not match")
	}
	return nil
}

func tokenResponse(pair *TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        JoinScope(pair.Scopes),
	}
}
