package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled indicates the account exists but is not enabled.
	ErrUserDisabled = errors.New("user disabled")
)
