package policy

import (
	"context"
	"log/slog"
)

// EngineStore is the read side the engine needs from the policy graph.
type EngineStore interface {
	PolicyIDsForEndpoint(ctx context.Context, endpointID int64) ([]int64, error)
	PolicyIDsForRoleNames(ctx context.Context, roleNames []string) ([]int64, error)
}

// Engine decides endpoint access by intersecting the policies guarding an
// endpoint with the policies granted through the caller's roles. It is pure
// over its inputs plus the current snapshot of the policy graph.
type Engine struct {
	store  EngineStore
	logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store EngineStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// EvaluateEndpointAccess reports whether any of the caller's roles carries a
// policy that guards the endpoint. Inactive roles, assignments, and policies
// contribute nothing; an endpoint with no active policies denies everyone.
func (e *Engine) EvaluateEndpointAccess(ctx context.Context, endpointID int64, roleNames []string) (bool, error) {
	if len(roleNames) == 0 {
		e.debug("no roles provided for endpoint access check", slog.Int64("endpoint_id", endpointID))
		return false, nil
	}

	granted, err := e.store.PolicyIDsForRoleNames(ctx, roleNames)
	if err != nil {
		return false, err
	}
	if len(granted) == 0 {
		e.debug("no policies granted by roles", slog.Int64("endpoint_id", endpointID))
		return false, nil
	}

	required, err := e.store.PolicyIDsForEndpoint(ctx, endpointID)
	if err != nil {
		return false, err
	}
	if len(required) == 0 {
		e.debug("endpoint has no active policies", slog.Int64("endpoint_id", endpointID))
		return false, nil
	}

	grantedSet := make(map[int64]struct{}, len(granted))
	for _, id := range granted {
		grantedSet[id] = struct{}{}
	}
	for _, id := range required {
		if _, ok := grantedSet[id]; ok {
			return true, nil
		}
	}

	e.debug("no policy intersection", slog.Int64("endpoint_id", endpointID))
	return false, nil
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
