package login

import "errors"

var (
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrInvalidState is returned when the state value is missing, expired,
	// already used or bound to another provider.
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrStateUnavailable   = errors.New("oauth state store unavailable")
	ErrExchangeFailed     = errors.New("authorization code exchange failed")
	ErrUserResolution     = errors.New("user resolution failed")
	ErrUserDisabled       = errors.New("user account disabled")
	ErrCredentialIssuance = errors.New("credential issuance failed")
)
