package oauth

import (
	"errors"
	"fmt"
)

// Standard OAuth error codes surfaced verbatim to callers.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeAuthorizationPending    = "authorization_pending"
	ErrCodeSlowDown                = "slow_down"
	ErrCodeExpiredToken            = "expired_token"
)

// ErrNotFound is returned by storage lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// Error is a protocol-level OAuth error carrying the RFC error code.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds a protocol error with the given code and description.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// AsError extracts a protocol *Error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
