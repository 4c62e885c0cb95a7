package oauth

import (
	"context"
	"time"
)

// Storage is the persistence contract for the authorization server. The
// three mutating hot paths (RedeemAuthCode, ResolveDeviceCode plus
// ConsumeDeviceCode, RotateToken) must be atomic: two concurrent callers
// racing on the same record see exactly one winner.
type Storage interface {
	// Clients.
	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	ListClientsByOwner(ctx context.Context, ownerID string) ([]*Client, error)

	// Pending authorize requests (consent-page binding, short TTL).
	SaveAuthRequest(ctx context.Context, req *AuthRequest) error
	GetAuthRequest(ctx context.Context, requestID string) (*AuthRequest, error)
	DeleteAuthRequest(ctx context.Context, requestID string) error

	// Authorization codes. RedeemAuthCode flips used=false to true and
	// returns the record; when the record exists but was already used it
	// returns it with replayed=true so the caller can react to intercepted
	// codes. Missing or expired-and-purged codes return ErrNotFound.
	SaveAuthCode(ctx context.Context, code *AuthorizationCode) error
	RedeemAuthCode(ctx context.Context, codeDigest string) (code *AuthorizationCode, replayed bool, err error)

	// Device codes. GetPendingDeviceCodeByUserCode only matches rows that
	// are pending and unexpired, so approved, denied, and expired codes are
	// indistinguishable from nonexistent ones. ResolveDeviceCode is a
	// conditional transition gated on status=pending. ConsumeDeviceCode
	// deletes the record iff status=approved and returns it; at most one
	// caller ever succeeds per code.
	SaveDeviceCode(ctx context.Context, code *DeviceCode) error
	GetDeviceCode(ctx context.Context, deviceCodeDigest string) (*DeviceCode, error)
	GetPendingDeviceCodeByUserCode(ctx context.Context, userCode string, now time.Time) (*DeviceCode, error)
	ResolveDeviceCode(ctx context.Context, userCode string, status DeviceStatus, userID string, now time.Time) error
	TouchDeviceCodePoll(ctx context.Context, deviceCodeDigest string, lastPollAt time.Time, interval int) error
	ConsumeDeviceCode(ctx context.Context, deviceCodeDigest string) (*DeviceCode, error)
	DeleteDeviceCode(ctx context.Context, deviceCodeDigest string) error
	UserCodeExists(ctx context.Context, userCode string) (bool, error)

	// Tokens. RotateToken revokes the pair identified by oldRefreshDigest
	// and inserts next in one transaction; if the old pair is already
	// revoked or missing, nothing is inserted and ErrNotFound is returned.
	SaveToken(ctx context.Context, token *Token) error
	GetTokenByAccess(ctx context.Context, accessDigest string) (*Token, error)
	GetTokenByRefresh(ctx context.Context, refreshDigest string) (*Token, error)
	RevokeToken(ctx context.Context, id string) error
	RevokeTokensForCode(ctx context.Context, codeDigest string) (int64, error)
	RotateToken(ctx context.Context, oldRefreshDigest string, next *Token) error

	PurgeExpired(ctx context.Context, now time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
