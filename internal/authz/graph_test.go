package authz

import (
	"context"
	"sort"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/platform/httpx"
	"github.com/aegis-identity/aegis/internal/policy"
	"github.com/aegis-identity/aegis/internal/uiconfig"
	"github.com/aegis-identity/aegis/internal/users"
)

// graph is an in-memory policy graph with the same filter semantics as the
// SQL repositories. It backs the builder, manager, and engine in tests.
type graph struct {
	users     map[int64]users.User
	roles     map[int64]policy.Role
	policies  map[int64]policy.Policy
	endpoints map[int64]catalog.Endpoint
	pages     map[int64]uiconfig.Page
	actions   []uiconfig.Action

	userRoles        map[int64][]int64
	rolePolicies     map[int64][]rolePolicyEdge
	endpointPolicies map[int64][]int64
}

type rolePolicyEdge struct {
	policyID int64
	active   bool
}

func newGraph() *graph {
	return &graph{
		users:            map[int64]users.User{},
		roles:            map[int64]policy.Role{},
		policies:         map[int64]policy.Policy{},
		endpoints:        map[int64]catalog.Endpoint{},
		pages:            map[int64]uiconfig.Page{},
		userRoles:        map[int64][]int64{},
		rolePolicies:     map[int64][]rolePolicyEdge{},
		endpointPolicies: map[int64][]int64{},
	}
}

func (g *graph) addUser(id int64, username string, version int64) {
	g.users[id] = users.User{ID: id, Username: username, Enabled: true, PermissionVersion: version}
}

func (g *graph) addRole(id int64, name string, active bool) {
	g.roles[id] = policy.Role{ID: id, Name: name, IsActive: active}
}

func (g *graph) addPolicy(id int64, name string, active bool) {
	g.policies[id] = policy.Policy{ID: id, Name: name, Type: policy.TypeRBAC, IsActive: active}
}

func (g *graph) addEndpoint(id int64, service, version, method, path string, active bool) {
	g.endpoints[id] = catalog.Endpoint{ID: id, Service: service, Version: version, Method: method, Path: path, IsActive: active}
}

func (g *graph) grantRole(userID, roleID int64) {
	g.userRoles[userID] = append(g.userRoles[userID], roleID)
}

func (g *graph) assignPolicy(roleID, policyID int64) {
	g.rolePolicies[roleID] = append(g.rolePolicies[roleID], rolePolicyEdge{policyID: policyID, active: true})
}

func (g *graph) attachPolicy(endpointID, policyID int64) {
	g.endpointPolicies[endpointID] = append(g.endpointPolicies[endpointID], policyID)
}

func (g *graph) activeRoleIDsByName(roleNames []string) map[int64]struct{} {
	wanted := make(map[string]struct{}, len(roleNames))
	for _, n := range roleNames {
		wanted[n] = struct{}{}
	}
	out := map[int64]struct{}{}
	for id, r := range g.roles {
		if !r.IsActive {
			continue
		}
		if _, ok := wanted[r.Name]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (g *graph) activePolicyIDsForRoles(roleIDs map[int64]struct{}) map[int64]struct{} {
	out := map[int64]struct{}{}
	for roleID := range roleIDs {
		for _, edge := range g.rolePolicies[roleID] {
			if !edge.active {
				continue
			}
			if p, ok := g.policies[edge.policyID]; ok && p.IsActive {
				out[p.ID] = struct{}{}
			}
		}
	}
	return out
}

// RoleNamesForUser implements GraphStore and DecisionStore.
func (g *graph) RoleNamesForUser(_ context.Context, userID int64) ([]string, error) {
	var out []string
	for _, roleID := range g.userRoles[userID] {
		if r, ok := g.roles[roleID]; ok && r.IsActive {
			out = append(out, r.Name)
		}
	}
	return out, nil
}

func (g *graph) RolesForUser(_ context.Context, userID int64) ([]policy.Role, error) {
	var out []policy.Role
	for _, roleID := range g.userRoles[userID] {
		if r, ok := g.roles[roleID]; ok && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *graph) PolicyNamesForRoleNames(_ context.Context, roleNames []string) ([]string, error) {
	var out []string
	for id := range g.activePolicyIDsForRoles(g.activeRoleIDsByName(roleNames)) {
		out = append(out, g.policies[id].Name)
	}
	sort.Strings(out)
	return out, nil
}

// PolicyIDsForRoleNames implements policy.EngineStore.
func (g *graph) PolicyIDsForRoleNames(_ context.Context, roleNames []string) ([]int64, error) {
	var out []int64
	for id := range g.activePolicyIDsForRoles(g.activeRoleIDsByName(roleNames)) {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g *graph) EndpointIDsForRoleNames(_ context.Context, roleNames []string) ([]int64, error) {
	seen := map[int64]struct{}{}
	policies := g.activePolicyIDsForRoles(g.activeRoleIDsByName(roleNames))
	for endpointID, policyIDs := range g.endpointPolicies {
		e, ok := g.endpoints[endpointID]
		if !ok || !e.IsActive {
			continue
		}
		for _, pid := range policyIDs {
			if _, granted := policies[pid]; granted {
				seen[endpointID] = struct{}{}
				break
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// PolicyIDsForEndpoint implements DecisionStore and policy.EngineStore.
func (g *graph) PolicyIDsForEndpoint(_ context.Context, endpointID int64) ([]int64, error) {
	var out []int64
	for _, pid := range g.endpointPolicies[endpointID] {
		if p, ok := g.policies[pid]; ok && p.IsActive {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (g *graph) RolePoliciesForRole(_ context.Context, roleID int64) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, edge := range g.rolePolicies[roleID] {
		if !edge.active {
			continue
		}
		if p, ok := g.policies[edge.policyID]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *graph) EndpointIDsByPolicy(_ context.Context, policyIDs []int64) (map[int64][]int64, error) {
	out := map[int64][]int64{}
	for endpointID, pids := range g.endpointPolicies {
		e, ok := g.endpoints[endpointID]
		if !ok || !e.IsActive {
			continue
		}
		for _, pid := range pids {
			for _, wanted := range policyIDs {
				if pid == wanted {
					out[pid] = append(out[pid], endpointID)
				}
			}
		}
	}
	for _, ids := range out {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return out, nil
}

func (g *graph) PoliciesForEndpoint(_ context.Context, endpointID int64) ([]policy.Policy, error) {
	var out []policy.Policy
	for _, pid := range g.endpointPolicies[endpointID] {
		if p, ok := g.policies[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindByID implements UserStore.
func (g *graph) FindByID(_ context.Context, id int64) (users.User, error) {
	u, ok := g.users[id]
	if !ok {
		return users.User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (g *graph) List(_ context.Context) ([]users.User, error) {
	var out []users.User
	for _, u := range g.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListActivePages implements PageStore.
func (g *graph) ListActivePages(_ context.Context) ([]uiconfig.Page, error) {
	var out []uiconfig.Page
	for _, p := range g.pages {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (g *graph) FindPage(_ context.Context, id int64) (uiconfig.Page, error) {
	p, ok := g.pages[id]
	if !ok {
		return uiconfig.Page{}, httpx.ErrNotFound
	}
	return p, nil
}

func (g *graph) ActiveActionsForPage(_ context.Context, pageID int64) ([]uiconfig.Action, error) {
	var out []uiconfig.Action
	for _, a := range g.actions {
		if a.PageID == pageID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (g *graph) ActiveActionsForPages(ctx context.Context, pageIDs []int64) (map[int64][]uiconfig.Action, error) {
	out := map[int64][]uiconfig.Action{}
	for _, id := range pageIDs {
		actions, _ := g.ActiveActionsForPage(ctx, id)
		if len(actions) > 0 {
			out[id] = actions
		}
	}
	return out, nil
}

func (g *graph) ActiveActionsForEndpointIDs(_ context.Context, endpointIDs []int64) ([]uiconfig.Action, error) {
	wanted := make(map[int64]struct{}, len(endpointIDs))
	for _, id := range endpointIDs {
		wanted[id] = struct{}{}
	}
	var out []uiconfig.Action
	for _, a := range g.actions {
		if !a.IsActive || a.EndpointID == nil {
			continue
		}
		if _, ok := wanted[*a.EndpointID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListPages and the CRUD methods below complete uiconfig.Store so the graph
// can back a uiconfig.Service in handler tests.
func (g *graph) ListPages(ctx context.Context) ([]uiconfig.Page, error) {
	var out []uiconfig.Page
	for _, p := range g.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *graph) CreatePage(_ context.Context, p uiconfig.Page) (uiconfig.Page, error) {
	g.pages[p.ID] = p
	return p, nil
}

func (g *graph) UpdatePage(_ context.Context, p uiconfig.Page) (uiconfig.Page, error) {
	if _, ok := g.pages[p.ID]; !ok {
		return uiconfig.Page{}, httpx.ErrNotFound
	}
	g.pages[p.ID] = p
	return p, nil
}

func (g *graph) DeletePage(_ context.Context, id int64) error {
	if _, ok := g.pages[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(g.pages, id)
	return nil
}

func (g *graph) FindAction(_ context.Context, id int64) (uiconfig.Action, error) {
	for _, a := range g.actions {
		if a.ID == id {
			return a, nil
		}
	}
	return uiconfig.Action{}, httpx.ErrNotFound
}

func (g *graph) CreateAction(_ context.Context, a uiconfig.Action) (uiconfig.Action, error) {
	g.actions = append(g.actions, a)
	return a, nil
}

func (g *graph) UpdateAction(_ context.Context, a uiconfig.Action) (uiconfig.Action, error) {
	for i := range g.actions {
		if g.actions[i].ID == a.ID {
			g.actions[i] = a
			return a, nil
		}
	}
	return uiconfig.Action{}, httpx.ErrNotFound
}

func (g *graph) DeleteAction(_ context.Context, id int64) error {
	for i := range g.actions {
		if g.actions[i].ID == id {
			g.actions = append(g.actions[:i], g.actions[i+1:]...)
			return nil
		}
	}
	return httpx.ErrNotFound
}

// FindByIDs implements EndpointStore.
func (g *graph) FindByIDs(_ context.Context, ids []int64) ([]catalog.Endpoint, error) {
	var out []catalog.Endpoint
	for _, id := range ids {
		if e, ok := g.endpoints[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *graph) ListAll(_ context.Context) ([]catalog.Endpoint, error) {
	var out []catalog.Endpoint
	for _, e := range g.endpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// graphCatalog narrows the graph to the catalog reader surface; FindByID
// here returns an endpoint rather than a user.
type graphCatalog struct{ *graph }

func (c graphCatalog) FindByID(_ context.Context, id int64) (catalog.Endpoint, error) {
	e, ok := c.endpoints[id]
	if !ok {
		return catalog.Endpoint{}, httpx.ErrNotFound
	}
	return e, nil
}

// ListByMethod implements catalog.MatcherStore, insertion order approximated
// by id order.
func (g *graph) ListByMethod(_ context.Context, method string) ([]catalog.Endpoint, error) {
	var out []catalog.Endpoint
	for _, e := range g.endpoints {
		if e.Method != method {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
