package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// VersionBumper invalidates cached client authorizations for every user whose
// effective access may have changed. Implemented by the users repository.
type VersionBumper interface {
	BumpPermissionVersionForRole(ctx context.Context, roleID int64) error
}

// Service orchestrates role and policy administration. All mutations that can
// change a user's effective access bump that user's permissionVersion.
type Service struct {
	repo   *Repository
	bumper VersionBumper
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo *Repository, bumper VersionBumper, logger *slog.Logger) *Service {
	return &Service{repo: repo, bumper: bumper, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.FindRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole rewrites a role. Deactivating a role erases it from the decision
// path, so the version bump covers its holders.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.bumpRole(ctx, updated.ID)
	return updated, nil
}

// DeleteRole removes a role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	s.bumpRole(ctx, id)
	return s.repo.DeleteRole(ctx, id)
}

// ListPolicies returns all policies ordered by name.
func (s *Service) ListPolicies(ctx context.Context) ([]Policy, error) {
	return s.repo.ListPolicies(ctx)
}

// GetPolicy fetches a policy by id.
func (s *Service) GetPolicy(ctx context.Context, id int64) (Policy, error) {
	return s.repo.FindPolicy(ctx, id)
}

// CreatePolicy inserts a new policy. Unknown types default to RBAC.
func (s *Service) CreatePolicy(ctx context.Context, p Policy) (Policy, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Policy{}, fmt.Errorf("%w: policy name required", httpx.ErrValidation)
	}
	p.Type = normalizeType(p.Type)
	return s.repo.CreatePolicy(ctx, p)
}

// UpdatePolicy rewrites a policy.
func (s *Service) UpdatePolicy(ctx context.Context, p Policy) (Policy, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Policy{}, fmt.Errorf("%w: policy name required", httpx.ErrValidation)
	}
	p.Type = normalizeType(p.Type)
	return s.repo.UpdatePolicy(ctx, p)
}

// DeletePolicy removes a policy.
func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	return s.repo.DeletePolicy(ctx, id)
}

// PoliciesForRole lists a role's active policy assignments.
func (s *Service) PoliciesForRole(ctx context.Context, roleID int64) ([]Policy, error) {
	if _, err := s.repo.FindRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePoliciesForRole(ctx, roleID)
}

// PoliciesForEndpoint lists the policies linked to an endpoint, inactive
// ones included.
func (s *Service) PoliciesForEndpoint(ctx context.Context, endpointID int64) ([]Policy, error) {
	return s.repo.PoliciesForEndpoint(ctx, endpointID)
}

// AssignPolicyToRole creates or reactivates an assignment and bumps the
// permission version of every user holding the role.
func (s *Service) AssignPolicyToRole(ctx context.Context, roleID, policyID int64, assignedBy *int64) error {
	if _, err := s.repo.FindRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.repo.FindPolicy(ctx, policyID); err != nil {
		return err
	}
	if err := s.repo.AssignPolicyToRole(ctx, roleID, policyID, assignedBy); err != nil {
		return err
	}
	s.bumpRole(ctx, roleID)
	return nil
}

// RemovePolicyFromRole deactivates an assignment and bumps holders.
func (s *Service) RemovePolicyFromRole(ctx context.Context, roleID, policyID int64) error {
	if err := s.repo.RemovePolicyFromRole(ctx, roleID, policyID); err != nil {
		return err
	}
	s.bumpRole(ctx, roleID)
	return nil
}

// AttachPolicyToEndpoint links a policy to an endpoint.
func (s *Service) AttachPolicyToEndpoint(ctx context.Context, endpointID, policyID int64) error {
	if _, err := s.repo.FindPolicy(ctx, policyID); err != nil {
		return err
	}
	return s.repo.AttachPolicyToEndpoint(ctx, endpointID, policyID)
}

// DetachPolicyFromEndpoint removes the link.
func (s *Service) DetachPolicyFromEndpoint(ctx context.Context, endpointID, policyID int64) error {
	return s.repo.DetachPolicyFromEndpoint(ctx, endpointID, policyID)
}

func (s *Service) bumpRole(ctx context.Context, roleID int64) {
	if s.bumper == nil {
		return
	}
	if err := s.bumper.BumpPermissionVersionForRole(ctx, roleID); err != nil && s.logger != nil {
		s.logger.Warn("bump permission version", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func normalizeType(t string) string {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case TypeABAC:
		return TypeABAC
	case TypeCustom:
		return TypeCustom
	default:
		return TypeRBAC
	}
}
