package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/uiconfig"
)

// PageRef identifies a page inside an audit view.
type PageRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Route string `json:"route"`
}

// PageActionAudit is an action reachable through an audited endpoint.
type PageActionAudit struct {
	Action string  `json:"action"`
	Label  string  `json:"label"`
	Page   PageRef `json:"page"`

	displayOrder int
}

// EndpointAudit is an endpoint reachable through an audited policy.
type EndpointAudit struct {
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	PageActions []PageActionAudit `json:"page_actions"`
}

// PolicyAudit groups the endpoints a policy guards.
type PolicyAudit struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Endpoints   []EndpointAudit `json:"endpoints"`
}

// RoleAudit groups the policies a role grants.
type RoleAudit struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Policies    []PolicyAudit `json:"policies"`
}

// UserAccessMatrix is the role→policy→endpoint audit view for one user.
// Branches that reach no endpoint are pruned.
type UserAccessMatrix struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Version     int64       `json:"version"`
	Filters     UserFilter  `json:"filters"`
	Roles       []RoleAudit `json:"roles"`
}

// UserFilter records which user the matrix was generated for.
type UserFilter struct {
	UserID int64 `json:"user_id"`
}

// EndpointRef identifies an endpoint inside the UI audit view.
type EndpointRef struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Method  string `json:"method"`
	Path    string `json:"path"`
}

// UIActionAudit is one action of an audited page.
type UIActionAudit struct {
	Label    string       `json:"label"`
	Action   string       `json:"action"`
	Endpoint *EndpointRef `json:"endpoint,omitempty"`

	displayOrder int
}

// UIAccessMatrix is the page→action→endpoint audit view for one page.
type UIAccessMatrix struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Version     int64           `json:"version"`
	PageID      int64           `json:"page_id"`
	Page        PageRef         `json:"page"`
	Actions     []UIActionAudit `json:"actions"`
}

// UserAccessMatrix builds the per-user audit view. Sorting is case-insensitive
// on role and policy names and on endpoint (service, path, method).
func (b *Builder) UserAccessMatrix(ctx context.Context, userID int64) (UserAccessMatrix, error) {
	u, err := b.users.FindByID(ctx, userID)
	if err != nil {
		return UserAccessMatrix{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	roles, err := b.graph.RolesForUser(ctx, userID)
	if err != nil {
		return UserAccessMatrix{}, fmt.Errorf("roles for user %d: %w", userID, err)
	}

	out := UserAccessMatrix{
		GeneratedAt: b.now().UTC(),
		Version:     u.PermissionVersion,
		Filters:     UserFilter{UserID: userID},
		Roles:       []RoleAudit{},
	}

	for _, role := range roles {
		policies, err := b.graph.RolePoliciesForRole(ctx, role.ID)
		if err != nil {
			return UserAccessMatrix{}, fmt.Errorf("policies for role %d: %w", role.ID, err)
		}
		policyIDs := make([]int64, 0, len(policies))
		for _, p := range policies {
			policyIDs = append(policyIDs, p.ID)
		}
		endpointsByPolicy, err := b.graph.EndpointIDsByPolicy(ctx, policyIDs)
		if err != nil {
			return UserAccessMatrix{}, fmt.Errorf("endpoints by policy: %w", err)
		}

		roleAudit := RoleAudit{Name: role.Name, Description: role.Description}
		for _, p := range policies {
			endpoints, err := b.auditEndpoints(ctx, endpointsByPolicy[p.ID])
			if err != nil {
				return UserAccessMatrix{}, err
			}
			if len(endpoints) == 0 {
				continue
			}
			roleAudit.Policies = append(roleAudit.Policies, PolicyAudit{
				Name:        p.Name,
				Description: p.Description,
				Endpoints:   endpoints,
			})
		}
		if len(roleAudit.Policies) == 0 {
			continue
		}
		sort.Slice(roleAudit.Policies, func(i, j int) bool {
			return lessFold(roleAudit.Policies[i].Name, roleAudit.Policies[j].Name)
		})
		out.Roles = append(out.Roles, roleAudit)
	}

	sort.Slice(out.Roles, func(i, j int) bool {
		return lessFold(out.Roles[i].Name, out.Roles[j].Name)
	})
	return out, nil
}

// AllUserAccessMatrices folds UserAccessMatrix over every user, skipping
// users that fail individual resolution.
func (b *Builder) AllUserAccessMatrices(ctx context.Context) ([]UserAccessMatrix, error) {
	all, err := b.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]UserAccessMatrix, 0, len(all))
	for _, u := range all {
		m, err := b.UserAccessMatrix(ctx, u.ID)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// UIAccessMatrix builds the per-page audit view, actions sorted by display
// order then label.
func (b *Builder) UIAccessMatrix(ctx context.Context, pageID int64) (UIAccessMatrix, error) {
	page, err := b.pages.FindPage(ctx, pageID)
	if err != nil {
		return UIAccessMatrix{}, fmt.Errorf("load page %d: %w", pageID, err)
	}

	actions, err := b.pages.ActiveActionsForPage(ctx, pageID)
	if err != nil {
		return UIAccessMatrix{}, fmt.Errorf("actions for page %d: %w", pageID, err)
	}

	endpointIDs := uiconfig.DedupEndpointIDs(actions)
	endpoints, err := b.endpoints.FindByIDs(ctx, endpointIDs)
	if err != nil {
		return UIAccessMatrix{}, fmt.Errorf("endpoints for page %d: %w", pageID, err)
	}
	byID := make(map[int64]catalog.Endpoint, len(endpoints))
	for _, e := range endpoints {
		byID[e.ID] = e
	}

	out := UIAccessMatrix{
		GeneratedAt: b.now().UTC(),
		Version:     b.now().UnixMilli(),
		PageID:      page.ID,
		Page:        PageRef{Key: page.Key, Label: page.Label, Route: page.Route},
		Actions:     []UIActionAudit{},
	}
	for _, a := range actions {
		audit := UIActionAudit{Label: a.Label, Action: a.Action, displayOrder: a.DisplayOrder}
		if a.EndpointID != nil {
			if e, ok := byID[*a.EndpointID]; ok {
				audit.Endpoint = &EndpointRef{Service: e.Service, Version: e.Version, Method: e.Method, Path: e.Path}
			}
		}
		out.Actions = append(out.Actions, audit)
	}
	sort.Slice(out.Actions, func(i, j int) bool {
		if out.Actions[i].displayOrder != out.Actions[j].displayOrder {
			return out.Actions[i].displayOrder < out.Actions[j].displayOrder
		}
		return lessFold(out.Actions[i].Label, out.Actions[j].Label)
	})
	return out, nil
}

// AllUIAccessMatrices folds UIAccessMatrix over every active page, skipping
// pages that fail individual resolution.
func (b *Builder) AllUIAccessMatrices(ctx context.Context) ([]UIAccessMatrix, error) {
	pages, err := b.pages.ListActivePages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	out := make([]UIAccessMatrix, 0, len(pages))
	for _, p := range pages {
		m, err := b.UIAccessMatrix(ctx, p.ID)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *Builder) auditEndpoints(ctx context.Context, endpointIDs []int64) ([]EndpointAudit, error) {
	if len(endpointIDs) == 0 {
		return nil, nil
	}
	endpoints, err := b.endpoints.FindByIDs(ctx, endpointIDs)
	if err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}
	actions, err := b.pages.ActiveActionsForEndpointIDs(ctx, endpointIDs)
	if err != nil {
		return nil, fmt.Errorf("actions for endpoints: %w", err)
	}
	pages, err := b.pages.ListActivePages(ctx)
	if err != nil {
		return nil, fmt.Errorf("active pages: %w", err)
	}
	pageByID := make(map[int64]uiconfig.Page, len(pages))
	for _, p := range pages {
		pageByID[p.ID] = p
	}
	actionsByEndpoint := map[int64][]PageActionAudit{}
	for _, a := range actions {
		if a.EndpointID == nil {
			continue
		}
		page, ok := pageByID[a.PageID]
		if !ok {
			continue
		}
		actionsByEndpoint[*a.EndpointID] = append(actionsByEndpoint[*a.EndpointID], PageActionAudit{
			Action:       a.Action,
			Label:        a.Label,
			Page:         PageRef{Key: page.Key, Label: page.Label, Route: page.Route},
			displayOrder: a.DisplayOrder,
		})
	}

	out := make([]EndpointAudit, 0, len(endpoints))
	for _, e := range endpoints {
		pageActions := actionsByEndpoint[e.ID]
		sort.Slice(pageActions, func(i, j int) bool {
			if pageActions[i].displayOrder != pageActions[j].displayOrder {
				return pageActions[i].displayOrder < pageActions[j].displayOrder
			}
			return pageActions[i].Label < pageActions[j].Label
		})
		if pageActions == nil {
			pageActions = []PageActionAudit{}
		}
		out = append(out, EndpointAudit{
			Service:     e.Service,
			Version:     e.Version,
			Method:      e.Method,
			Path:        e.Path,
			PageActions: pageActions,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !strings.EqualFold(out[i].Service, out[j].Service) {
			return lessFold(out[i].Service, out[j].Service)
		}
		if !strings.EqualFold(out[i].Path, out[j].Path) {
			return lessFold(out[i].Path, out[j].Path)
		}
		return lessFold(out[i].Method, out[j].Method)
	})
	return out, nil
}

func lessFold(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}
