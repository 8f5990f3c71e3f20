package users

import (
	"context"
	"strconv"

	"github.com/aegis-identity/aegis/internal/shared"
)

// PrincipalResolver turns the opaque session principal into a numeric user
// id. The decision core consumes only the id.
type PrincipalResolver interface {
	UserID(ctx context.Context, principal *shared.Principal) (int64, bool)
}

// SessionResolver resolves the user id the login flow stored in the session.
type SessionResolver struct{}

// NewSessionResolver constructs a SessionResolver.
func NewSessionResolver() *SessionResolver {
	return &SessionResolver{}
}

// UserID parses the session's user reference. A principal that carries
// anything but a numeric id does not resolve.
func (SessionResolver) UserID(_ context.Context, principal *shared.Principal) (int64, bool) {
	if principal == nil || principal.SessionUserID == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(principal.SessionUserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
