package uiconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

type stubStore struct {
	pages   map[int64]Page
	actions map[int64][]Action
}

func (s *stubStore) ListActivePages(ctx context.Context) ([]Page, error) {
	var out []Page
	for _, p := range s.pages {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) ListPages(ctx context.Context) ([]Page, error) { return nil, nil }

func (s *stubStore) FindPage(ctx context.Context, id int64) (Page, error) {
	p, ok := s.pages[id]
	if !ok {
		return Page{}, httpx.ErrNotFound
	}
	return p, nil
}

func (s *stubStore) CreatePage(ctx context.Context, p Page) (Page, error) { return p, nil }
func (s *stubStore) UpdatePage(ctx context.Context, p Page) (Page, error) { return p, nil }
func (s *stubStore) DeletePage(ctx context.Context, id int64) error       { return nil }

func (s *stubStore) ActiveActionsForPage(ctx context.Context, pageID int64) ([]Action, error) {
	return s.actions[pageID], nil
}

func (s *stubStore) ActiveActionsForPages(ctx context.Context, pageIDs []int64) (map[int64][]Action, error) {
	out := map[int64][]Action{}
	for _, id := range pageIDs {
		if as := s.actions[id]; len(as) > 0 {
			out[id] = as
		}
	}
	return out, nil
}

func (s *stubStore) FindAction(ctx context.Context, id int64) (Action, error) {
	return Action{}, httpx.ErrNotFound
}
func (s *stubStore) CreateAction(ctx context.Context, a Action) (Action, error) { return a, nil }
func (s *stubStore) UpdateAction(ctx context.Context, a Action) (Action, error) { return a, nil }
func (s *stubStore) DeleteAction(ctx context.Context, id int64) error           { return nil }

func ptr(v int64) *int64 { return &v }

func TestEndpointIDsForPageDedupsFirstOccurrence(t *testing.T) {
	store := &stubStore{
		pages: map[int64]Page{10: {ID: 10, Key: "invoices", Label: "Invoices", IsActive: true}},
		actions: map[int64][]Action{10: {
			{ID: 1, PageID: 10, EndpointID: ptr(7), Action: "view"},
			{ID: 2, PageID: 10, EndpointID: ptr(3), Action: "export"},
			{ID: 3, PageID: 10, EndpointID: ptr(7), Action: "print"},
			{ID: 4, PageID: 10, Action: "help"},
			{ID: 5, PageID: 10, EndpointID: ptr(9), Action: "void"},
		}},
	}
	svc := NewService(store)

	ids, err := svc.EndpointIDsForPage(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 3, 9}, ids)
}

func TestEndpointIDsForPageUnknownPage(t *testing.T) {
	svc := NewService(&stubStore{pages: map[int64]Page{}})
	_, err := svc.EndpointIDsForPage(context.Background(), 99)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestUpdatePageRejectsSelfParent(t *testing.T) {
	store := &stubStore{pages: map[int64]Page{
		1: {ID: 1, Key: "root", Label: "Root", IsActive: true},
	}}
	svc := NewService(store)

	_, err := svc.UpdatePage(context.Background(), Page{ID: 1, Key: "root", Label: "Root", ParentID: ptr(1)})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdatePageRejectsDescendantParent(t *testing.T) {
	// 1 <- 2 <- 3; reparenting 1 under 3 would close the loop.
	store := &stubStore{pages: map[int64]Page{
		1: {ID: 1, Key: "a", Label: "A", IsActive: true},
		2: {ID: 2, Key: "b", Label: "B", ParentID: ptr(1), IsActive: true},
		3: {ID: 3, Key: "c", Label: "C", ParentID: ptr(2), IsActive: true},
	}}
	svc := NewService(store)

	_, err := svc.UpdatePage(context.Background(), Page{ID: 1, Key: "a", Label: "A", ParentID: ptr(3)})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdatePageAllowsValidReparent(t *testing.T) {
	store := &stubStore{pages: map[int64]Page{
		1: {ID: 1, Key: "a", Label: "A", IsActive: true},
		2: {ID: 2, Key: "b", Label: "B", IsActive: true},
	}}
	svc := NewService(store)

	_, err := svc.UpdatePage(context.Background(), Page{ID: 2, Key: "b", Label: "B", ParentID: ptr(1)})
	require.NoError(t, err)
}
