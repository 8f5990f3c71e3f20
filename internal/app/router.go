package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-identity/aegis/internal/auth"
	"github.com/aegis-identity/aegis/internal/authz"
	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/policy"
	"github.com/aegis-identity/aegis/internal/shared"
	"github.com/aegis-identity/aegis/internal/uiconfig"
	"github.com/aegis-identity/aegis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler     *auth.Handler
	AuthzHandler    *authz.Handler
	InternalHandler *authz.InternalHandler
	CatalogHandler  *catalog.Handler
	PolicyHandler   *policy.Handler
	UIConfigHandler *uiconfig.Handler
	JobHandler      *jobs.Handler
	Manager         *authz.Manager
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminGuard(params.Config, params.Manager))
			r.Route("/roles", params.PolicyHandler.MountRoleRoutes)
			r.Route("/policies", params.PolicyHandler.MountPolicyRoutes)
			r.Route("/endpoints", func(r chi.Router) {
				params.CatalogHandler.MountRoutes(r)
				params.PolicyHandler.MountEndpointPolicyRoutes(r)
			})
			r.Route("/pages", params.UIConfigHandler.MountRoutes)
		})
	})

	r.Route("/internal/authz", params.InternalHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/internal/jobs", params.JobHandler.MountRoutes)
	}

	return r
}

// adminGuard applies the decision manager to the admin surface. The bootstrap
// user bypasses it so a fresh install can seed the catalog that the decision
// itself depends on.
func adminGuard(cfg *Config, manager *authz.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := manager.Middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil && cfg.AdminBootstrapUser != "" {
				if p := shared.PrincipalFromContext(r.Context()); p != nil && p.SessionUserID == cfg.AdminBootstrapUser {
					next.ServeHTTP(w, r)
					return
				}
			}
			guarded.ServeHTTP(w, r)
		})
	}
}
