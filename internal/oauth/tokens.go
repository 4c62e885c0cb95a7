package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskhivehq/taskhive/internal/events"
)

// TokenManager issues, validates, revokes, and rotates opaque token pairs.
// Tokens are random identifiers; everything about them lives in storage.
type TokenManager struct {
	store  Storage
	cfg    Config
	events events.Publisher
	now    func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(store Storage, cfg Config, publisher events.Publisher) *TokenManager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TokenManager{
		store:  store,
		cfg:    cfg,
		events: publisher,
		now:    time.Now,
	}
}

// Issue mints an access token, optionally paired with a refresh token
// sharing the same lifecycle record. codeDigest links the pair to the
// authorization code it came from, for replay revocation; it is empty for
// the other grants.
func (m *TokenManager) Issue(ctx context.Context, clientID, userID string, scopes []string, withRefresh bool, codeDigest string) (*TokenPair, error) {
	now := m.now()

	accessToken, err := RandomString(32)
	if err != nil {
		return nil, err
	}

	record := &Token{
		ID:           uuid.New().String(),
		AccessDigest: HashToken(accessToken),
		ClientID:     clientID,
		UserID:       userID,
		Scopes:       scopes,
		CodeDigest:   codeDigest,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.AccessTokenTTL),
	}

	var refreshToken string
	if withRefresh {
		refreshToken, err = RandomString(48)
		if err != nil {
			return nil, err
		}
		record.RefreshDigest = HashToken(refreshToken)
		record.RefreshExpiresAt = now.Add(m.cfg.RefreshTokenTTL)
	}

	if err := m.store.SaveToken(ctx, record); err != nil {
		return nil, err
	}

	m.events.Publish(ctx, events.Event{
		Type:     events.TypeTokenIssued,
		ClientID: clientID,
		UserID:   userID,
	})

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(m.cfg.AccessTokenTTL.Seconds()),
		Scopes:       scopes,
	}, nil
}

// Validate resolves a presented access token to its record. The lookup is
// by digest, and the stored digest is additionally compared in constant
// time against the recomputed one so no equality check on the validation
// path can leak timing.
func (m *TokenManager) Validate(ctx context.Context, accessToken string) (*Token, error) {
	if accessToken == "" {
		return nil, ErrNotFound
	}

	digest := HashToken(accessToken)
	record, err := m.store.GetTokenByAccess(ctx, digest)
	if err != nil {
		return nil, err
	}
	if !ConstantTimeEquals(record.AccessDigest, digest) {
		return nil, ErrNotFound
	}
	if record.Revoked || !m.now().Before(record.ExpiresAt) {
		return nil, ErrNotFound
	}
	return record, nil
}

// Revoke invalidates the pair the presented token belongs to. The value may
// be an access or a refresh token. Unknown tokens are a no-op: revocation
// is idempotent and must not reveal whether the token existed.
func (m *TokenManager) Revoke(ctx context.Context, presented string) error {
	digest := HashToken(presented)

	record, err := m.store.GetTokenByAccess(ctx, digest)
	if errors.Is(err, ErrNotFound) {
		record, err = m.store.GetTokenByRefresh(ctx, digest)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.store.RevokeToken(ctx, record.ID); err != nil {
		return err
	}
	m.events.Publish(ctx, events.Event{
		Type:     events.TypeTokenRevoked,
		ClientID: record.ClientID,
		UserID:   record.UserID,
	})
	return nil
}

// RevokeForClient revokes a pair only when it belongs to clientID, for the
// revocation endpoint where the caller authenticated as a client.
func (m *TokenManager) RevokeForClient(ctx context.Context, presented, clientID string) error {
	digest := HashToken(presented)

	record, err := m.store.GetTokenByAccess(ctx, digest)
	if errors.Is(err, ErrNotFound) {
		record, err = m.store.GetTokenByRefresh(ctx, digest)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if record.ClientID != clientID {
		// Same outward behavior as an unknown token.
		return nil
	}

	if err := m.store.RevokeToken(ctx, record.ID); err != nil {
		return err
	}
	m.events.Publish(ctx, events.Event{
		Type:     events.TypeTokenRevoked,
		ClientID: record.ClientID,
		UserID:   record.UserID,
	})
	return nil
}

// Rotate exchanges a refresh token for a fresh pair. The old pair is
// invalidated in the same transaction that activates the new one: at no
// point are both valid, and a failed rotation leaves the old pair intact.
func (m *TokenManager) Rotate(ctx context.Context, refreshToken string, client *Client) (*TokenPair, error) {
	invalid := NewError(ErrCodeInvalidGrant, "invalid refresh token")
	now := m.now()

	digest := HashToken(refreshToken)
	record, err := m.store.GetTokenByRefresh(ctx, digest)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if !ConstantTimeEquals(record.RefreshDigest, digest) {
		return nil, invalid
	}
	if record.Revoked || !now.Before(record.RefreshExpiresAt) {
		return nil, invalid
	}
	if record.ClientID != client.ClientID {
		return nil, invalid
	}

	accessToken, err := RandomString(32)
	if err != nil {
		return nil, err
	}
	newRefresh, err := RandomString(48)
	if err != nil {
		return nil, err
	}

	next := &Token{
		ID:               uuid.New().String(),
		AccessDigest:     HashToken(accessToken),
		RefreshDigest:    HashToken(newRefresh),
		ClientID:         record.ClientID,
		UserID:           record.UserID,
		Scopes:           record.Scopes,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(m.cfg.RefreshTokenTTL),
	}

	err = m.store.RotateToken(ctx, digest, next)
	if errors.Is(err, ErrNotFound) {
		// Lost a race with a concurrent rotation of the same token.
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	m.events.Publish(ctx, events.Event{
		Type:     events.TypeTokenRotated,
		ClientID: record.ClientID,
		UserID:   record.UserID,
	})

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    int(m.cfg.AccessTokenTTL.Seconds()),
		Scopes:       record.Scopes,
	}, nil
}
