package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// Repository provides user reads and the permissionVersion bump used by the
// admin mutation paths.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, email, enabled, permission_version, created_at, updated_at`

// FindByID fetches a user by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`, id)
	return scanUser(row)
}

// FindByUsername fetches a user by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1`, username)
	return scanUser(row)
}

// List returns all users ordered by username.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BumpPermissionVersion increments the version counter for the given users so
// their cached authorization payloads stop validating.
func (r *Repository) BumpPermissionVersion(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET permission_version = permission_version + 1, updated_at = now()
		WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return fmt.Errorf("bump permission version: %w", err)
	}
	return nil
}

// BumpPermissionVersionForRole bumps every user currently holding the role.
// Satisfies policy.VersionBumper.
func (r *Repository) BumpPermissionVersionForRole(ctx context.Context, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET permission_version = permission_version + 1, updated_at = now()
		WHERE id IN (SELECT user_id FROM user_roles WHERE role_id = $1)`, roleID)
	if err != nil {
		return fmt.Errorf("bump permission version for role %d: %w", roleID, err)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Enabled, &u.PermissionVersion, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return u, err
}
