package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/aegis-identity/aegis/internal/uiconfig"
)

// ActionView is a UI action the user may invoke.
type ActionView struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Icon       string `json:"icon,omitempty"`
	Variant    string `json:"variant,omitempty"`
	EndpointID int64  `json:"endpointId"`
}

// PageView is a page in the user's navigation tree. Pages included only to
// keep the tree connected carry an empty actions list.
type PageView struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Path         string       `json:"path"`
	ParentID     *int64       `json:"parentId,omitempty"`
	Icon         string       `json:"icon,omitempty"`
	DisplayOrder int          `json:"displayOrder"`
	IsMenuItem   bool         `json:"isMenuItem"`
	Actions      []ActionView `json:"actions"`
}

// UserAuthorizations is the payload served to clients for UI gating.
type UserAuthorizations struct {
	UserID   int64      `json:"userId"`
	Username string     `json:"username"`
	Roles    []string   `json:"roles"`
	Version  int64      `json:"version"`
	Pages    []PageView `json:"pages"`
}

// UserAuthorizations builds the user's pages and actions tree: pages whose
// actions reach an endpoint the user's roles grant, plus ancestor pages kept
// for navigation with empty action lists.
func (b *Builder) UserAuthorizations(ctx context.Context, userID int64) (UserAuthorizations, error) {
	u, err := b.users.FindByID(ctx, userID)
	if err != nil {
		return UserAuthorizations{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	roleNames, err := b.graph.RoleNamesForUser(ctx, userID)
	if err != nil {
		return UserAuthorizations{}, fmt.Errorf("roles for user %d: %w", userID, err)
	}
	sort.Strings(roleNames)
	if roleNames == nil {
		roleNames = []string{}
	}

	granted, err := b.userEndpointIDs(ctx, roleNames)
	if err != nil {
		return UserAuthorizations{}, fmt.Errorf("endpoints for user %d: %w", userID, err)
	}

	pages, err := b.pages.ListActivePages(ctx)
	if err != nil {
		return UserAuthorizations{}, fmt.Errorf("active pages: %w", err)
	}
	pageIDs := make([]int64, 0, len(pages))
	byID := make(map[int64]uiconfig.Page, len(pages))
	for _, p := range pages {
		pageIDs = append(pageIDs, p.ID)
		byID[p.ID] = p
	}
	actionsByPage, err := b.pages.ActiveActionsForPages(ctx, pageIDs)
	if err != nil {
		return UserAuthorizations{}, fmt.Errorf("page actions: %w", err)
	}

	included := make(map[int64]PageView)
	for _, p := range pages {
		var kept []ActionView
		for _, a := range actionsByPage[p.ID] {
			if a.EndpointID == nil {
				continue
			}
			if _, ok := granted[*a.EndpointID]; !ok {
				continue
			}
			kept = append(kept, ActionView{
				Name:       a.Action,
				Label:      a.Label,
				Icon:       a.Icon,
				Variant:    a.Variant,
				EndpointID: *a.EndpointID,
			})
		}
		if len(kept) > 0 {
			included[p.ID] = pageView(p, kept)
		}
	}

	fillParents(included, byID)

	return UserAuthorizations{
		UserID:   u.ID,
		Username: u.Username,
		Roles:    roleNames,
		Version:  b.now().UnixMilli(),
		Pages:    orderTree(included),
	}, nil
}

func pageView(p uiconfig.Page, actions []ActionView) PageView {
	if actions == nil {
		actions = []ActionView{}
	}
	return PageView{
		ID:           p.ID,
		Name:         p.Label,
		Path:         p.Route,
		ParentID:     p.ParentID,
		Icon:         p.Icon,
		DisplayOrder: p.DisplayOrder,
		IsMenuItem:   p.IsMenuItem,
		Actions:      actions,
	}
}

// fillParents adds every ancestor of an included page, with no actions, until
// the set is closed. A parent that is not in the active catalog cannot be
// served, so its children are reparented to the root instead of dangling.
func fillParents(included map[int64]PageView, byID map[int64]uiconfig.Page) {
	for {
		missing := map[int64]struct{}{}
		for id, pv := range included {
			if pv.ParentID == nil {
				continue
			}
			parent := *pv.ParentID
			if _, ok := included[parent]; ok {
				continue
			}
			if p, ok := byID[parent]; ok {
				included[p.ID] = pageView(p, nil)
				missing[p.ID] = struct{}{}
				continue
			}
			pv.ParentID = nil
			included[id] = pv
		}
		if len(missing) == 0 {
			return
		}
	}
}

// orderTree emits roots by display order, each immediately followed by its
// subtree, children ordered by their own display order.
func orderTree(included map[int64]PageView) []PageView {
	children := map[int64][]PageView{}
	var roots []PageView
	for _, pv := range included {
		if pv.ParentID == nil {
			roots = append(roots, pv)
			continue
		}
		children[*pv.ParentID] = append(children[*pv.ParentID], pv)
	}
	byOrder := func(views []PageView) {
		sort.Slice(views, func(i, j int) bool {
			if views[i].DisplayOrder != views[j].DisplayOrder {
				return views[i].DisplayOrder < views[j].DisplayOrder
			}
			return views[i].ID < views[j].ID
		})
	}
	byOrder(roots)
	for _, vs := range children {
		byOrder(vs)
	}

	out := make([]PageView, 0, len(included))
	var emit func(pv PageView)
	emit = func(pv PageView) {
		out = append(out, pv)
		for _, child := range children[pv.ID] {
			emit(child)
		}
	}
	for _, root := range roots {
		emit(root)
	}
	return out
}
