package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/policy"
	"github.com/aegis-identity/aegis/internal/shared"
	"github.com/aegis-identity/aegis/internal/users"
)

// Deny reasons. Only logged server-side; responses never disclose which rule
// denied the request.
const (
	ReasonOptions         = "options"
	ReasonUnauthenticated = "unauthenticated"
	ReasonUnresolvable    = "unresolvable"
	ReasonUncataloged     = "uncataloged"
	ReasonInactive        = "inactive"
	ReasonUnprotected     = "unprotected"
	ReasonPolicy          = "policy"
	ReasonOK              = "ok"
)

// Decision is the outcome of a request-time authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// EndpointResolver maps a request line to a cataloged endpoint.
// *catalog.Matcher satisfies it.
type EndpointResolver interface {
	Resolve(ctx context.Context, method, rawPath string) (catalog.Descriptor, error)
}

// DecisionStore is the slice of the policy graph the manager reads.
// *policy.Repository satisfies it.
type DecisionStore interface {
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	PolicyIDsForEndpoint(ctx context.Context, endpointID int64) ([]int64, error)
	PoliciesForEndpoint(ctx context.Context, endpointID int64) ([]policy.Policy, error)
}

// Evaluator decides endpoint access for a role set. *policy.Engine satisfies it.
type Evaluator interface {
	EvaluateEndpointAccess(ctx context.Context, endpointID int64, roleNames []string) (bool, error)
}

// Manager coordinates the request-time decision. It is stateless; every
// uncertainty resolves to deny.
type Manager struct {
	matcher  EndpointResolver
	resolver users.PrincipalResolver
	store    DecisionStore
	engine   Evaluator
	logger   *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(matcher EndpointResolver, resolver users.PrincipalResolver, store DecisionStore, engine Evaluator, logger *slog.Logger) *Manager {
	return &Manager{matcher: matcher, resolver: resolver, store: store, engine: engine, logger: logger}
}

// Authorize runs the decision procedure for one request line. Errors along
// the path are converted to deny; the closed world admits no maybes.
func (m *Manager) Authorize(ctx context.Context, principal *shared.Principal, method, path string) Decision {
	if method == http.MethodOptions {
		return Decision{Allowed: true, Reason: ReasonOptions}
	}
	if principal == nil {
		return m.deny(ReasonUnauthenticated, method, path, 0)
	}
	userID, ok := m.resolver.UserID(ctx, principal)
	if !ok {
		m.logger.Warn("principal did not resolve to a user id",
			slog.String("method", method), slog.String("path", path))
		return m.deny(ReasonUnresolvable, method, path, 0)
	}

	normalized := catalog.NormalizePath(path)
	endpoint, err := m.matcher.Resolve(ctx, method, normalized)
	if err != nil {
		if !errors.Is(err, catalog.ErrEndpointNotFound) {
			m.logger.Error("endpoint resolution failed", slog.Any("error", err))
		}
		return m.deny(ReasonUncataloged, method, normalized, userID)
	}
	if !endpoint.Active {
		return m.deny(ReasonInactive, method, normalized, userID)
	}

	required, err := m.store.PolicyIDsForEndpoint(ctx, endpoint.ID)
	if err != nil {
		m.logger.Error("load endpoint policies", slog.Any("error", err))
		return m.deny(ReasonUnprotected, method, normalized, userID)
	}
	if len(required) == 0 {
		// An endpoint with no policy links at all is intentionally closed.
		// Links that exist but are all inactive deny as a policy failure.
		linked, err := m.store.PoliciesForEndpoint(ctx, endpoint.ID)
		if err != nil {
			m.logger.Error("load endpoint policy links", slog.Any("error", err))
		}
		if len(linked) > 0 {
			return m.deny(ReasonPolicy, method, normalized, userID)
		}
		return m.deny(ReasonUnprotected, method, normalized, userID)
	}

	roleNames, err := m.store.RoleNamesForUser(ctx, userID)
	if err != nil {
		m.logger.Error("load user roles", slog.Any("error", err))
		return m.deny(ReasonPolicy, method, normalized, userID)
	}
	allowed, err := m.engine.EvaluateEndpointAccess(ctx, endpoint.ID, roleNames)
	if err != nil {
		m.logger.Error("policy evaluation failed", slog.Any("error", err))
		return m.deny(ReasonPolicy, method, normalized, userID)
	}
	if !allowed {
		return m.deny(ReasonPolicy, method, normalized, userID)
	}

	m.logger.Debug("request allowed",
		slog.String("method", method), slog.String("path", normalized), slog.Int64("user_id", userID))
	return Decision{Allowed: true, Reason: ReasonOK}
}

func (m *Manager) deny(reason, method, path string, userID int64) Decision {
	m.logger.Info("request denied",
		slog.String("reason", reason),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int64("user_id", userID))
	return Decision{Allowed: false, Reason: reason}
}
