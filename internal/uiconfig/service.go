package uiconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// Store is the persistence surface the service needs. *Repository satisfies it.
type Store interface {
	ListActivePages(ctx context.Context) ([]Page, error)
	ListPages(ctx context.Context) ([]Page, error)
	FindPage(ctx context.Context, id int64) (Page, error)
	CreatePage(ctx context.Context, p Page) (Page, error)
	UpdatePage(ctx context.Context, p Page) (Page, error)
	DeletePage(ctx context.Context, id int64) error
	ActiveActionsForPage(ctx context.Context, pageID int64) ([]Action, error)
	ActiveActionsForPages(ctx context.Context, pageIDs []int64) (map[int64][]Action, error)
	FindAction(ctx context.Context, id int64) (Action, error)
	CreateAction(ctx context.Context, a Action) (Action, error)
	UpdateAction(ctx context.Context, a Action) (Action, error)
	DeleteAction(ctx context.Context, id int64) error
}

// Service wraps page and action administration and the reads the
// authorization tree is built from.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListActivePages returns the active page catalog in display order.
func (s *Service) ListActivePages(ctx context.Context) ([]Page, error) {
	return s.store.ListActivePages(ctx)
}

// ListPages returns every page for administration.
func (s *Service) ListPages(ctx context.Context) ([]Page, error) {
	return s.store.ListPages(ctx)
}

// GetPage fetches one page.
func (s *Service) GetPage(ctx context.Context, id int64) (Page, error) {
	return s.store.FindPage(ctx, id)
}

// ActionsForPage returns a page's active actions in display order.
func (s *Service) ActionsForPage(ctx context.Context, pageID int64) ([]Action, error) {
	if _, err := s.store.FindPage(ctx, pageID); err != nil {
		return nil, err
	}
	return s.store.ActiveActionsForPage(ctx, pageID)
}

// ActionsByPage returns active actions grouped by page for a page set.
func (s *Service) ActionsByPage(ctx context.Context, pageIDs []int64) (map[int64][]Action, error) {
	return s.store.ActiveActionsForPages(ctx, pageIDs)
}

// EndpointIDsForPage lists the catalog endpoints a page's active actions
// invoke, in action display order. Duplicate endpoint references keep their
// first occurrence.
func (s *Service) EndpointIDsForPage(ctx context.Context, pageID int64) ([]int64, error) {
	actions, err := s.ActionsForPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return DedupEndpointIDs(actions), nil
}

// DedupEndpointIDs extracts endpoint ids from actions preserving order, first
// occurrence winning.
func DedupEndpointIDs(actions []Action) []int64 {
	seen := make(map[int64]struct{}, len(actions))
	var out []int64
	for _, a := range actions {
		if a.EndpointID == nil {
			continue
		}
		id := *a.EndpointID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreatePage validates and inserts a page.
func (s *Service) CreatePage(ctx context.Context, p Page) (Page, error) {
	if err := s.validatePage(ctx, p); err != nil {
		return Page{}, err
	}
	return s.store.CreatePage(ctx, p)
}

// UpdatePage validates and rewrites a page. Reparenting a page onto itself or
// one of its descendants is rejected.
func (s *Service) UpdatePage(ctx context.Context, p Page) (Page, error) {
	if err := s.validatePage(ctx, p); err != nil {
		return Page{}, err
	}
	if p.ParentID != nil {
		if err := s.checkNoCycle(ctx, p.ID, *p.ParentID); err != nil {
			return Page{}, err
		}
	}
	return s.store.UpdatePage(ctx, p)
}

// DeletePage removes a page and its actions.
func (s *Service) DeletePage(ctx context.Context, id int64) error {
	return s.store.DeletePage(ctx, id)
}

// GetAction fetches one action.
func (s *Service) GetAction(ctx context.Context, id int64) (Action, error) {
	return s.store.FindAction(ctx, id)
}

// CreateAction validates and inserts an action.
func (s *Service) CreateAction(ctx context.Context, a Action) (Action, error) {
	if err := validateAction(a); err != nil {
		return Action{}, err
	}
	if _, err := s.store.FindPage(ctx, a.PageID); err != nil {
		return Action{}, err
	}
	return s.store.CreateAction(ctx, a)
}

// UpdateAction validates and rewrites an action.
func (s *Service) UpdateAction(ctx context.Context, a Action) (Action, error) {
	if err := validateAction(a); err != nil {
		return Action{}, err
	}
	return s.store.UpdateAction(ctx, a)
}

// DeleteAction removes an action.
func (s *Service) DeleteAction(ctx context.Context, id int64) error {
	return s.store.DeleteAction(ctx, id)
}

func (s *Service) validatePage(ctx context.Context, p Page) error {
	if strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("%w: page key and label required", httpx.ErrValidation)
	}
	if p.ParentID != nil {
		if _, err := s.store.FindPage(ctx, *p.ParentID); err != nil {
			return fmt.Errorf("%w: parent page %d not found", httpx.ErrValidation, *p.ParentID)
		}
	}
	return nil
}

// checkNoCycle walks the parent chain from the proposed parent upward. Hitting
// pageID means the assignment would close a loop. The walk is bounded so a
// pre-existing corrupt chain cannot spin forever.
func (s *Service) checkNoCycle(ctx context.Context, pageID, parentID int64) error {
	const maxDepth = 64
	cur := parentID
	for i := 0; i < maxDepth; i++ {
		if cur == pageID {
			return fmt.Errorf("%w: page %d cannot be its own ancestor", httpx.ErrValidation, pageID)
		}
		p, err := s.store.FindPage(ctx, cur)
		if err != nil {
			return err
		}
		if p.ParentID == nil {
			return nil
		}
		cur = *p.ParentID
	}
	return fmt.Errorf("%w: page hierarchy too deep", httpx.ErrValidation)
}

func validateAction(a Action) error {
	if strings.TrimSpace(a.Label) == "" || strings.TrimSpace(a.Action) == "" {
		return fmt.Errorf("%w: action label and action key required", httpx.ErrValidation)
	}
	return nil
}
