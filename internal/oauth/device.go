package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/taskhivehq/taskhive/internal/events"
)

// Device resolution actions.
const (
	DeviceActionApprove = "approve"
	DeviceActionDeny    = "deny"
)

// DeviceCodePayload is the RFC 8628 §3.2 device authorization response.
type DeviceCodePayload struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// DeviceFlow coordinates RFC 8628 device authorization: code issuance and
// the pending/approved/denied state machine. Token minting for the polling
// client goes through the Exchanger, not this type.
type DeviceFlow struct {
	store  Storage
	cfg    Config
	events events.Publisher
	now    func() time.Time
}

// NewDeviceFlow creates a device flow coordinator.
func NewDeviceFlow(store Storage, cfg Config, publisher events.Publisher) *DeviceFlow {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &DeviceFlow{store: store, cfg: cfg, events: publisher, now: time.Now}
}

// RequestDeviceCode starts a device authorization for the given client.
func (f *DeviceFlow) RequestDeviceCode(ctx context.Context, clientID, scope string) (*DeviceCodePayload, error) {
	client, err := f.store.GetClient(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		return nil, NewError(ErrCodeInvalidClient, "unknown client")
	}
	if err != nil {
		return nil, err
	}
	if !client.IsActive {
		return nil, NewError(ErrCodeInvalidClient, "client is not active")
	}
	if !client.AllowsGrant("device_code") {
		return nil, NewError(ErrCodeUnauthorizedClient, "client may not use the device_code grant")
	}

	scopes, err := NegotiateScope(scope, client.Scopes, f.cfg.DefaultScope)
	if err != nil {
		return nil, err
	}

	deviceCode, err := RandomString(32)
	if err != nil {
		return nil, err
	}
	userCode, err := f.uniqueUserCode(ctx)
	if err != nil {
		return nil, err
	}

	now := f.now()
	record := &DeviceCode{
		DeviceCodeDigest: HashToken(deviceCode),
		UserCode:         userCode,
		ClientID:         clientID,
		Scopes:           scopes,
		Status:           DeviceStatusPending,
		Interval:         f.cfg.DeviceInterval,
		// Backdated so the device's first poll is already due.
		LastPollAt: now.Add(-time.Duration(f.cfg.DeviceInterval) * time.Second),
		CreatedAt:  now,
		ExpiresAt:  now.Add(f.cfg.DeviceCodeTTL),
	}
	if err := f.store.SaveDeviceCode(ctx, record); err != nil {
		return nil, err
	}

	complete := appendQuery(f.cfg.VerificationURI, url.Values{"user_code": {userCode}})
	return &DeviceCodePayload{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         f.cfg.VerificationURI,
		VerificationURIComplete: complete,
		ExpiresIn:               int(f.cfg.DeviceCodeTTL.Seconds()),
		Interval:                f.cfg.DeviceInterval,
	}, nil
}

// LookupByUserCode fetches a device authorization for the verification
// page. Only pending, unexpired codes are visible; anything else looks like
// a miss so the endpoint cannot be used to probe state.
func (f *DeviceFlow) LookupByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	return f.store.GetPendingDeviceCodeByUserCode(ctx, NormalizeUserCode(userCode), f.now())
}

// Resolve applies the user's approve/deny decision. The transition is a
// single conditional update gated on status=pending; once a code leaves
// pending it never moves again.
func (f *DeviceFlow) Resolve(ctx context.Context, userCode, action, userID string) error {
	normalized := NormalizeUserCode(userCode)

	switch action {
	case DeviceActionApprove:
		if userID == "" {
			return NewError(ErrCodeInvalidRequest, "approval requires an authenticated user")
		}
		if err := f.store.ResolveDeviceCode(ctx, normalized, DeviceStatusApproved, userID, f.now()); err != nil {
			return err
		}
		f.events.Publish(ctx, events.Event{Type: events.TypeDeviceApproved, UserID: userID})
		return nil
	case DeviceActionDeny:
		// user_id stays empty: it is set iff the code is approved.
		if err := f.store.ResolveDeviceCode(ctx, normalized, DeviceStatusDenied, "", f.now()); err != nil {
			return err
		}
		f.events.Publish(ctx, events.Event{Type: events.TypeDeviceDenied, UserID: userID})
		return nil
	default:
		return NewError(ErrCodeInvalidRequest, "action must be approve or deny")
	}
}

func (f *DeviceFlow) uniqueUserCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := NewUserCode()
		if err != nil {
			return "", err
		}
		exists, err := f.store.UserCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique user code")
}
