package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-identity/aegis/internal/platform/db"
	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

const endpointColumns = `id, service, version, method, path, description, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for the endpoint catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByMethod returns every cataloged endpoint for an HTTP method in
// insertion order. Inactive rows are included; the matcher skips them so that
// a freshly reactivated endpoint shows up within one cache TTL.
func (r *Repository) ListByMethod(ctx context.Context, method string) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE method = $1 ORDER BY id`, method)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// ListAll returns the full catalog ordered by service, path, method.
func (r *Repository) ListAll(ctx context.Context) ([]Endpoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM endpoints ORDER BY service, path, method`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// FindByID fetches a single endpoint.
func (r *Repository) FindByID(ctx context.Context, id int64) (Endpoint, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = $1`, id)
	endpoint, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, httpx.ErrNotFound
		}
		return Endpoint{}, err
	}
	return endpoint, nil
}

// FindByIDs fetches endpoints by id, preserving no particular order.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]Endpoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// Create inserts a new catalog entry.
func (r *Repository) Create(ctx context.Context, e Endpoint) (Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO endpoints (service, version, method, path, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+endpointColumns,
		e.Service, e.Version, e.Method, e.Path, e.Description, e.IsActive)
	return scanEndpoint(row)
}

// Update rewrites a catalog entry.
func (r *Repository) Update(ctx context.Context, e Endpoint) (Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE endpoints
		SET service = $2, version = $3, method = $4, path = $5, description = $6,
		    is_active = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+endpointColumns,
		e.ID, e.Service, e.Version, e.Method, e.Path, e.Description, e.IsActive)
	endpoint, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, httpx.ErrNotFound
		}
		return Endpoint{}, err
	}
	return endpoint, nil
}

// SetActive flips the active flag without touching the rest of the row.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE endpoints
		SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+endpointColumns, id, active)
	endpoint, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, httpx.ErrNotFound
		}
		return Endpoint{}, err
	}
	return endpoint, nil
}

// Delete removes a catalog entry and its policy links in one transaction so a
// concurrent decision never sees an endpoint stripped of its guards.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM endpoint_policies WHERE endpoint_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return nil
	})
}

func scanEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var endpoints []Endpoint
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.ID, &e.Service, &e.Version, &e.Method, &e.Path,
			&e.Description, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var e Endpoint
	err := row.Scan(&e.ID, &e.Service, &e.Version, &e.Method, &e.Path,
		&e.Description, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

var _ Store = (*Repository)(nil)
