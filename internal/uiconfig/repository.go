package uiconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// Repository provides page and action persistence backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const pageColumns = `id, parent_id, page_key, label, route, icon, display_order, is_menu_item, is_active, created_at, updated_at`

const actionColumns = `id, page_id, endpoint_id, label, action, icon, variant, display_order, is_active`

// ListActivePages returns active pages ordered by display order then id, so
// callers see a stable menu order.
func (r *Repository) ListActivePages(ctx context.Context) ([]Page, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pageColumns+`
		FROM ui_pages
		WHERE is_active = TRUE
		ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list active pages: %w", err)
	}
	defer rows.Close()
	return scanPages(rows)
}

// ListPages returns every page, active or not, for administration.
func (r *Repository) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pageColumns+`
		FROM ui_pages
		ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	return scanPages(rows)
}

// FindPage fetches a single page.
func (r *Repository) FindPage(ctx context.Context, id int64) (Page, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+pageColumns+`
		FROM ui_pages
		WHERE id = $1`, id)
	p, err := scanPage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Page{}, httpx.ErrNotFound
	}
	return p, err
}

// CreatePage inserts a page.
func (r *Repository) CreatePage(ctx context.Context, p Page) (Page, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO ui_pages (parent_id, page_key, label, route, icon, display_order, is_menu_item, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+pageColumns,
		p.ParentID, p.Key, p.Label, p.Route, p.Icon, p.DisplayOrder, p.IsMenuItem, p.IsActive)
	created, err := scanPage(row)
	if err != nil {
		return Page{}, mapWriteErr("create page", err)
	}
	return created, nil
}

// UpdatePage rewrites a page.
func (r *Repository) UpdatePage(ctx context.Context, p Page) (Page, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE ui_pages
		SET parent_id = $2, page_key = $3, label = $4, route = $5, icon = $6,
		    display_order = $7, is_menu_item = $8, is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+pageColumns,
		p.ID, p.ParentID, p.Key, p.Label, p.Route, p.Icon, p.DisplayOrder, p.IsMenuItem, p.IsActive)
	updated, err := scanPage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Page{}, httpx.ErrNotFound
	}
	if err != nil {
		return Page{}, mapWriteErr("update page", err)
	}
	return updated, nil
}

// DeletePage removes a page and, through FK cascade, its actions.
func (r *Repository) DeletePage(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ui_pages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ActiveActionsForPage returns a page's active actions in display order.
func (r *Repository) ActiveActionsForPage(ctx context.Context, pageID int64) ([]Action, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM page_actions
		WHERE page_id = $1 AND is_active = TRUE
		ORDER BY display_order, id`, pageID)
	if err != nil {
		return nil, fmt.Errorf("actions for page: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// ActiveActionsForPages returns active actions for a page set, grouped by
// page, each group in display order.
func (r *Repository) ActiveActionsForPages(ctx context.Context, pageIDs []int64) (map[int64][]Action, error) {
	if len(pageIDs) == 0 {
		return map[int64][]Action{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM page_actions
		WHERE page_id = ANY($1) AND is_active = TRUE
		ORDER BY display_order, id`, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("actions for pages: %w", err)
	}
	defer rows.Close()
	actions, err := scanActions(rows)
	if err != nil {
		return nil, err
	}
	byPage := make(map[int64][]Action, len(pageIDs))
	for _, a := range actions {
		byPage[a.PageID] = append(byPage[a.PageID], a)
	}
	return byPage, nil
}

// ActiveActionsForEndpointIDs returns active actions bound to any of the
// given endpoints.
func (r *Repository) ActiveActionsForEndpointIDs(ctx context.Context, endpointIDs []int64) ([]Action, error) {
	if len(endpointIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM page_actions
		WHERE endpoint_id = ANY($1) AND is_active = TRUE
		ORDER BY page_id, display_order, id`, endpointIDs)
	if err != nil {
		return nil, fmt.Errorf("actions for endpoints: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// FindAction fetches a single action.
func (r *Repository) FindAction(ctx context.Context, id int64) (Action, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+actionColumns+`
		FROM page_actions
		WHERE id = $1`, id)
	a, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Action{}, httpx.ErrNotFound
	}
	return a, err
}

// CreateAction inserts an action.
func (r *Repository) CreateAction(ctx context.Context, a Action) (Action, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO page_actions (page_id, endpoint_id, label, action, icon, variant, display_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+actionColumns,
		a.PageID, a.EndpointID, a.Label, a.Action, a.Icon, a.Variant, a.DisplayOrder, a.IsActive)
	created, err := scanAction(row)
	if err != nil {
		return Action{}, mapWriteErr("create action", err)
	}
	return created, nil
}

// UpdateAction rewrites an action.
func (r *Repository) UpdateAction(ctx context.Context, a Action) (Action, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE page_actions
		SET page_id = $2, endpoint_id = $3, label = $4, action = $5, icon = $6,
		    variant = $7, display_order = $8, is_active = $9
		WHERE id = $1
		RETURNING `+actionColumns,
		a.ID, a.PageID, a.EndpointID, a.Label, a.Action, a.Icon, a.Variant, a.DisplayOrder, a.IsActive)
	updated, err := scanAction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Action{}, httpx.ErrNotFound
	}
	if err != nil {
		return Action{}, mapWriteErr("update action", err)
	}
	return updated, nil
}

// DeleteAction removes an action.
func (r *Repository) DeleteAction(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM page_actions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func scanPages(rows pgx.Rows) ([]Page, error) {
	var out []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPage(row pgx.Row) (Page, error) {
	var p Page
	err := row.Scan(&p.ID, &p.ParentID, &p.Key, &p.Label, &p.Route, &p.Icon,
		&p.DisplayOrder, &p.IsMenuItem, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanActions(rows pgx.Rows) ([]Action, error) {
	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAction(row pgx.Row) (Action, error) {
	var a Action
	err := row.Scan(&a.ID, &a.PageID, &a.EndpointID, &a.Label, &a.Action, &a.Icon,
		&a.Variant, &a.DisplayOrder, &a.IsActive)
	return a, err
}

func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", httpx.ErrDuplicate, op)
		case "23503":
			return fmt.Errorf("%w: %s references a missing row", httpx.ErrValidation, op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
