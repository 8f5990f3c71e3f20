package policy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

const (
	policyColumns = `id, name, description, type, is_active, created_at, updated_at`
	roleColumns   = `id, name, description, is_active, created_at, updated_at`

	uniqueViolation = "23505"
)

// Repository provides PostgreSQL backed persistence for the policy graph.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PolicyIDsForEndpoint returns the ids of active policies guarding an
// endpoint. An empty result means the endpoint is closed to everyone.
func (r *Repository) PolicyIDsForEndpoint(ctx context.Context, endpointID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id
		FROM endpoint_policies ep
		JOIN policies p ON p.id = ep.policy_id
		WHERE ep.endpoint_id = $1 AND p.is_active
		ORDER BY p.id`, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// PolicyIDsForRoleNames returns the ids of active policies granted to any of
// the given roles through active assignments on active roles. Role names
// compare by exact string equality.
func (r *Repository) PolicyIDsForRoleNames(ctx context.Context, roleNames []string) ([]int64, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.id
		FROM roles ro
		JOIN role_policies rp ON rp.role_id = ro.id AND rp.is_active
		JOIN policies p ON p.id = rp.policy_id AND p.is_active
		WHERE ro.name = ANY($1) AND ro.is_active
		ORDER BY p.id`, roleNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// PolicyNamesForRoleNames is the name-keyed variant used by the enforcement
// matrix.
func (r *Repository) PolicyNamesForRoleNames(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM roles ro
		JOIN role_policies rp ON rp.role_id = ro.id AND rp.is_active
		JOIN policies p ON p.id = rp.policy_id AND p.is_active
		WHERE ro.name = ANY($1) AND ro.is_active
		ORDER BY p.name`, roleNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EndpointIDsForRoleNames computes the accessible endpoint set implied by the
// given roles: active assignments, active policies, active endpoints.
func (r *Repository) EndpointIDsForRoleNames(ctx context.Context, roleNames []string) ([]int64, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT e.id
		FROM roles ro
		JOIN role_policies rp ON rp.role_id = ro.id AND rp.is_active
		JOIN policies p ON p.id = rp.policy_id AND p.is_active
		JOIN endpoint_policies ep ON ep.policy_id = p.id
		JOIN endpoints e ON e.id = ep.endpoint_id AND e.is_active
		WHERE ro.name = ANY($1) AND ro.is_active
		ORDER BY e.id`, roleNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// RoleNamesForUser returns the names of the user's active roles.
func (r *Repository) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id AND ro.is_active
		WHERE ur.user_id = $1
		ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RolesForUser returns the user's active roles.
func (r *Repository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.name, ro.description, ro.is_active, ro.created_at, ro.updated_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id AND ro.is_active
		WHERE ur.user_id = $1
		ORDER BY lower(ro.name)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// ActiveRolePoliciesByRole groups active role-policy assignments whose policy
// is still active, keyed by role id.
func (r *Repository) ActiveRolePoliciesByRole(ctx context.Context) (map[int64][]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, rp.policy_id
		FROM role_policies rp
		JOIN policies p ON p.id = rp.policy_id AND p.is_active
		WHERE rp.is_active
		ORDER BY rp.role_id, rp.policy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped := make(map[int64][]int64)
	for rows.Next() {
		var roleID, policyID int64
		if err := rows.Scan(&roleID, &policyID); err != nil {
			return nil, err
		}
		grouped[roleID] = append(grouped[roleID], policyID)
	}
	return grouped, rows.Err()
}

// EndpointIDsByPolicy groups policy→endpoint links for active endpoints,
// keyed by policy id.
func (r *Repository) EndpointIDsByPolicy(ctx context.Context, policyIDs []int64) (map[int64][]int64, error) {
	if len(policyIDs) == 0 {
		return map[int64][]int64{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ep.policy_id, ep.endpoint_id
		FROM endpoint_policies ep
		JOIN endpoints e ON e.id = ep.endpoint_id AND e.is_active
		WHERE ep.policy_id = ANY($1)
		ORDER BY ep.policy_id, ep.endpoint_id`, policyIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped := make(map[int64][]int64)
	for rows.Next() {
		var policyID, endpointID int64
		if err := rows.Scan(&policyID, &endpointID); err != nil {
			return nil, err
		}
		grouped[policyID] = append(grouped[policyID], endpointID)
	}
	return grouped, rows.Err()
}

// ListActivePolicies returns every active policy ordered by name.
func (r *Repository) ListActivePolicies(ctx context.Context) ([]Policy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// PoliciesForEndpoint returns the policies linked to an endpoint including
// inactive ones; inspection surfaces want the full picture.
func (r *Repository) PoliciesForEndpoint(ctx context.Context, endpointID int64) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description, p.type, p.is_active, p.created_at, p.updated_at
		FROM endpoint_policies ep
		JOIN policies p ON p.id = ep.policy_id
		WHERE ep.endpoint_id = $1
		ORDER BY p.name`, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// FindRole fetches a role by id.
func (r *Repository) FindRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING `+roleColumns, name, description)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, mapWriteErr(err)
	}
	return role, nil
}

// UpdateRole rewrites a role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, is_active = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.IsActive)
	var out Role
	if err := row.Scan(&out.ID, &out.Name, &out.Description, &out.IsActive,
		&out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, mapWriteErr(err)
	}
	return out, nil
}

// DeleteRole removes a role.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListPolicies returns all policies ordered by name.
func (r *Repository) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// FindPolicy fetches a policy by id.
func (r *Repository) FindPolicy(ctx context.Context, id int64) (Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	var p Policy
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Type, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, httpx.ErrNotFound
		}
		return Policy{}, err
	}
	return p, nil
}

// CreatePolicy inserts a policy. Duplicate names map to httpx.ErrDuplicate.
func (r *Repository) CreatePolicy(ctx context.Context, p Policy) (Policy, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO policies (name, description, type, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+policyColumns,
		p.Name, p.Description, p.Type, p.IsActive)
	var out Policy
	if err := row.Scan(&out.ID, &out.Name, &out.Description, &out.Type, &out.IsActive,
		&out.CreatedAt, &out.UpdatedAt); err != nil {
		return Policy{}, mapWriteErr(err)
	}
	return out, nil
}

// UpdatePolicy rewrites a policy.
func (r *Repository) UpdatePolicy(ctx context.Context, p Policy) (Policy, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE policies
		SET name = $2, description = $3, type = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+policyColumns,
		p.ID, p.Name, p.Description, p.Type, p.IsActive)
	var out Policy
	if err := row.Scan(&out.ID, &out.Name, &out.Description, &out.Type, &out.IsActive,
		&out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, httpx.ErrNotFound
		}
		return Policy{}, mapWriteErr(err)
	}
	return out, nil
}

// DeletePolicy removes a policy.
func (r *Repository) DeletePolicy(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// RolePoliciesForRole lists a role's active assignments.
func (r *Repository) RolePoliciesForRole(ctx context.Context, roleID int64) ([]Policy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description, p.type, p.is_active, p.created_at, p.updated_at
		FROM role_policies rp
		JOIN policies p ON p.id = rp.policy_id
		WHERE rp.role_id = $1 AND rp.is_active
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// AssignPolicyToRole creates or reactivates a role-policy assignment.
func (r *Repository) AssignPolicyToRole(ctx context.Context, roleID, policyID int64, assignedBy *int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_policies (role_id, policy_id, is_active, assigned_at, assigned_by)
		VALUES ($1, $2, TRUE, now(), $3)
		ON CONFLICT (role_id, policy_id)
		DO UPDATE SET is_active = TRUE, assigned_at = now(), assigned_by = EXCLUDED.assigned_by`,
		roleID, policyID, assignedBy)
	return err
}

// RemovePolicyFromRole deactivates an assignment. Soft-deactivation is
// semantically equivalent to absence for the decision path.
func (r *Repository) RemovePolicyFromRole(ctx context.Context, roleID, policyID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_policies SET is_active = FALSE
		WHERE role_id = $1 AND policy_id = $2 AND is_active`, roleID, policyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// AttachPolicyToEndpoint links a policy to an endpoint.
func (r *Repository) AttachPolicyToEndpoint(ctx context.Context, endpointID, policyID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO endpoint_policies (endpoint_id, policy_id)
		VALUES ($1, $2)
		ON CONFLICT (endpoint_id, policy_id) DO NOTHING`, endpointID, policyID)
	return err
}

// DetachPolicyFromEndpoint hard-deletes the link.
func (r *Repository) DetachPolicyFromEndpoint(ctx context.Context, endpointID, policyID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM endpoint_policies WHERE endpoint_id = $1 AND policy_id = $2`,
		endpointID, policyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return httpx.ErrDuplicate
	}
	return err
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPolicies(rows pgx.Rows) ([]Policy, error) {
	var policies []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Type, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
