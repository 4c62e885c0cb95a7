package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost for client secrets.
const secretHashCost = 12

// decoySecretHash is compared against when the client does not exist, so a
// missing client and a wrong secret cost the same and return the same error.
const decoySecretHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// ErrForbidden is returned when a caller mutates a client it does not own.
var ErrForbidden = errors.New("forbidden")

// Registry owns OAuth client records: registration, secret verification,
// and owner-gated mutation.
type Registry struct {
	store Storage
}

// NewRegistry creates a client registry backed by store.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

// ClientInput is the caller-supplied part of a registration.
type ClientInput struct {
	Name         string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	IsPublic     bool
}

// ClientPatch is an owner update. Nil fields are left unchanged.
type ClientPatch struct {
	Name         *string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	IsActive     *bool
}

// Create registers a client and returns it together with the plaintext
// secret for confidential clients. The secret exists only in the return
// value; storage keeps a bcrypt hash and it is never logged.
func (r *Registry) Create(ctx context.Context, ownerID string, in ClientInput) (*Client, string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, "", NewError(ErrCodeInvalidRequest, "client name is required")
	}
	if len(in.RedirectURIs) == 0 {
		return nil, "", NewError(ErrCodeInvalidRequest, "redirect_uris is required")
	}
	for _, uri := range in.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, "", NewError(ErrCodeInvalidRequest, err.Error())
		}
	}
	if len(in.GrantTypes) == 0 {
		in.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(in.Scopes) == 0 {
		in.Scopes = []string{"read"}
	}

	id, err := RandomString(18)
	if err != nil {
		return nil, "", err
	}
	clientID := "client_" + id

	var secret, secretHash string
	if !in.IsPublic {
		// 32 bytes of CSPRNG output, well above the 256-bit floor.
		secret, err = RandomString(32)
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), secretHashCost)
		if err != nil {
			return nil, "", err
		}
		secretHash = string(hash)
	}

	client := &Client{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		OwnerID:          ownerID,
		Name:             in.Name,
		RedirectURIs:     in.RedirectURIs,
		GrantTypes:       in.GrantTypes,
		Scopes:           in.Scopes,
		IsActive:         true,
		IsPublic:         in.IsPublic,
	}
	if err := r.store.SaveClient(ctx, client); err != nil {
		return nil, "", err
	}
	return client, secret, nil
}

// Get fetches a client by id.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	return r.store.GetClient(ctx, clientID)
}

// ListByOwner returns the clients registered by a user.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]*Client, error) {
	return r.store.ListClientsByOwner(ctx, ownerID)
}

// Update applies an owner patch. Callers that do not own the client get
// ErrForbidden.
func (r *Registry) Update(ctx context.Context, clientID, ownerID string, patch ClientPatch) (*Client, error) {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, NewError(ErrCodeInvalidRequest, "client name is required")
		}
		client.Name = *patch.Name
	}
	if patch.RedirectURIs != nil {
		for _, uri := range patch.RedirectURIs {
			if err := ValidateRedirectURI(uri); err != nil {
				return nil, NewError(ErrCodeInvalidRequest, err.Error())
			}
		}
		client.RedirectURIs = patch.RedirectURIs
	}
	if patch.GrantTypes != nil {
		client.GrantTypes = patch.GrantTypes
	}
	if patch.Scopes != nil {
		client.Scopes = patch.Scopes
	}
	if patch.IsActive != nil {
		client.IsActive = *patch.IsActive
	}

	if err := r.store.SaveClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Deactivate soft-disables a client. Outstanding tokens keep their rows but
// fail validation once the client is inactive; the record is never hard
// deleted while tokens reference it.
func (r *Registry) Deactivate(ctx context.Context, clientID, ownerID string) error {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.OwnerID != ownerID {
		return ErrForbidden
	}
	client.IsActive = false
	return r.store.SaveClient(ctx, client)
}

// Authenticate resolves and authenticates a client at the token endpoint.
// Public clients authenticate by id alone. Every failure mode returns the
// same invalid_client error; a caller cannot tell a missing client from a
// wrong secret.
func (r *Registry) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	invalid := NewError(ErrCodeInvalidClient, "client authentication failed")
	if clientID == "" {
		return nil, invalid
	}

	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn the same bcrypt work as the real comparison.
			_ = bcrypt.CompareHashAndPassword([]byte(decoySecretHash), []byte(clientSecret))
			return nil, invalid
		}
		return nil, err
	}
	if !client.IsActive {
		return nil, invalid
	}

	if client.IsPublic {
		return client, nil
	}

	if clientSecret == "" {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		return nil, invalid
	}
	return client, nil
}

// ValidateRedirectURI accepts absolute https URIs, plus http for loopback
// hosts during development. Wildcards are rejected outright; registered
// URIs are matched exactly at authorization time.
func ValidateRedirectURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid redirect_uri: %s", raw)
	}
	if strings.Contains(raw, "*") {
		return fmt.Errorf("redirect_uri must not contain wildcards: %s", raw)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment: %s", raw)
	}
	if parsed.Scheme == "https" {
		return nil
	}
	host := parsed.Hostname()
	if parsed.Scheme == "http" && (host == "localhost" || host == "127.0.0.1" || host == "::1") {
		return nil
	}
	return fmt.Errorf("redirect_uri must use https (or localhost http): %s", raw)
}
