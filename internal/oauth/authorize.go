package oauth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Consent actions accepted by Complete.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// AuthorizeRequest carries the /authorize parameters.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ConsentContext is what the consent page needs to render after a valid
// /authorize GET.
type ConsentContext struct {
	RequestID string
	Client    *Client
	Scopes    []string
	Request   AuthorizeRequest
}

// RedirectError is a protocol error that must be delivered by redirecting
// the user-agent back to the (already validated) redirect URI.
type RedirectError struct {
	RedirectURI string
	Code        string
	Description string
	State       string
}

func (e *RedirectError) Error() string {
	return e.Code + ": " + e.Description
}

// URL renders the error redirect location.
func (e *RedirectError) URL() string {
	params := url.Values{}
	params.Set("error", e.Code)
	if e.Description != "" {
		params.Set("error_description", e.Description)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	return appendQuery(e.RedirectURI, params)
}

// CodeIssuer implements the /authorize step: consent preconditions and code
// minting.
type CodeIssuer struct {
	store Storage
	cfg   Config
	now   func() time.Time
}

// NewCodeIssuer creates a code issuer.
func NewCodeIssuer(store Storage, cfg Config) *CodeIssuer {
	return &CodeIssuer{store: store, cfg: cfg, now: time.Now}
}

// Begin validates an /authorize GET. Ordering matters: the client and
// redirect URI are checked before anything may be reported by redirect,
// because until then the redirect URI is attacker-controlled. Later
// failures come back as *RedirectError.
func (i *CodeIssuer) Begin(ctx context.Context, req AuthorizeRequest) (*ConsentContext, error) {
	client, scopes, err := i.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	now := i.now()
	authReq := &AuthRequest{
		RequestID:           uuid.New().String(),
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(i.cfg.AuthRequestTTL),
	}
	if err := i.store.SaveAuthRequest(ctx, authReq); err != nil {
		return nil, err
	}

	return &ConsentContext{
		RequestID: authReq.RequestID,
		Client:    client,
		Scopes:    scopes,
		Request:   req,
	}, nil
}

// Complete handles the consent POST. The body is attacker-controlled, so
// everything is re-validated from scratch; a prior Begin proves nothing.
// It returns the redirect location for the user-agent (303).
func (i *CodeIssuer) Complete(ctx context.Context, action string, req AuthorizeRequest, userID string) (string, error) {
	_, scopes, err := i.validate(ctx, req)
	if err != nil {
		return "", err
	}

	if action == ActionDeny {
		denied := &RedirectError{
			RedirectURI: req.RedirectURI,
			Code:        ErrCodeAccessDenied,
			Description: "the resource owner denied the request",
			State:       req.State,
		}
		return denied.URL(), nil
	}
	if action != ActionAllow {
		return "", NewError(ErrCodeInvalidRequest, "action must be allow or deny")
	}

	code, err := RandomString(32)
	if err != nil {
		return "", err
	}

	now := i.now()
	record := &AuthorizationCode{
		CodeDigest:          HashToken(code),
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(i.cfg.AuthCodeTTL),
	}
	if err := i.store.SaveAuthCode(ctx, record); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("code", code)
	if req.State != "" {
		params.Set("state", req.State)
	}
	return appendQuery(req.RedirectURI, params), nil
}

// DiscardRequest drops a pending authorize request once the consent
// decision has been applied. Unknown request IDs are not an error.
func (i *CodeIssuer) DiscardRequest(ctx context.Context, requestID string) error {
	err := i.store.DeleteAuthRequest(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// validate runs the ordered checks shared by Begin and Complete and
// returns the client and the granted scope set.
func (i *CodeIssuer) validate(ctx context.Context, req AuthorizeRequest) (*Client, []string, error) {
	if req.ClientID == "" {
		return nil, nil, NewError(ErrCodeInvalidRequest, "client_id is required")
	}

	client, err := i.store.GetClient(ctx, req.ClientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, NewError(ErrCodeInvalidClient, "unknown client")
	}
	if err != nil {
		return nil, nil, err
	}
	if !client.IsActive {
		return nil, nil, NewError(ErrCodeInvalidClient, "client is not active")
	}

	if req.RedirectURI == "" || !client.AllowsRedirect(req.RedirectURI) {
		return nil, nil, NewError(ErrCodeInvalidRequest, "redirect_uri is not registered for this client")
	}

	// From here on the redirect URI is trusted and errors go back through
	// it.
	if req.ResponseType != "code" {
		return nil, nil, &RedirectError{
			RedirectURI: req.RedirectURI,
			Code:        ErrCodeUnsupportedResponseType,
			Description: "only response_type=code is supported",
			State:       req.State,
		}
	}

	if !client.AllowsGrant("authorization_code") {
		return nil, nil, &RedirectError{
			RedirectURI: req.RedirectURI,
			Code:        ErrCodeUnauthorizedClient,
			Description: "client may not use the authorization_code grant",
			State:       req.State,
		}
	}

	if err := i.checkPKCE(client, &req); err != nil {
		return nil, nil, err
	}

	scopes, err := NegotiateScope(req.Scope, client.Scopes, i.cfg.DefaultScope)
	if err != nil {
		oe, _ := AsError(err)
		return nil, nil, &RedirectError{
			RedirectURI: req.RedirectURI,
			Code:        oe.Code,
			Description: oe.Description,
			State:       req.State,
		}
	}

	return client, scopes, nil
}

func (i *CodeIssuer) checkPKCE(client *Client, req *AuthorizeRequest) error {
	if req.CodeChallenge == "" {
		if req.CodeChallengeMethod != "" {
			return &RedirectError{
				RedirectURI: req.RedirectURI,
				Code:        ErrCodeInvalidRequest,
				Description: "code_challenge_method without code_challenge",
				State:       req.State,
			}
		}
		if client.IsPublic && i.cfg.RequirePKCEForPublicClients {
			return &RedirectError{
				RedirectURI: req.RedirectURI,
				Code:        ErrCodeInvalidRequest,
				Description: "public clients must use PKCE",
				State:       req.State,
			}
		}
		return nil
	}

	switch req.CodeChallengeMethod {
	case "":
		req.CodeChallengeMethod = "plain"
	case "plain", "S256":
	default:
		return &RedirectError{
			RedirectURI: req.RedirectURI,
			Code:        ErrCodeInvalidRequest,
			Description: "code_challenge_method must be plain or S256",
			State:       req.State,
		}
	}
	return nil
}

func appendQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for key, vals := range params {
		for _, val := range vals {
			q.Set(key, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
