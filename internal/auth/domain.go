package auth

import "time"

// Credential is the authentication-facing view of a user account.
type Credential struct {
	ID           int64
	Username     string
	PasswordHash string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
