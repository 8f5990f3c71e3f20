package users

import "time"

// User is the read model the authorization core works with. Credentials live
// with the auth adapter.
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email,omitempty"`
	Enabled           bool      `json:"enabled"`
	PermissionVersion int64     `json:"permissionVersion"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
