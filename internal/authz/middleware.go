package authz

import (
	"net/http"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
	"github.com/aegis-identity/aegis/internal/shared"
)

// Middleware enforces the manager's decision on every request passing
// through. Denials do not disclose the responsible rule.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		decision := m.Authorize(r.Context(), principal, r.Method, r.URL.RequestURI())
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		if decision.Reason == ReasonUnauthenticated {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
	})
}
