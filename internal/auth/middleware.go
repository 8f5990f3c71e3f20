package auth

import (
	"net/http"

	"github.com/aegis-identity/aegis/internal/shared"
)

// PrincipalMiddleware attaches the session's user reference to the request
// context as a principal. Requests without a logged-in session carry none.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			if userID := sess.User(); userID != "" {
				ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{SessionUserID: userID})
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}
