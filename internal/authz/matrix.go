package authz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/policy"
	"github.com/aegis-identity/aegis/internal/uiconfig"
	"github.com/aegis-identity/aegis/internal/users"
)

// Matrix is the enforcement-facing view of a user's access: role names and
// the active policy names they grant. permissionVersion doubles as the ETag
// key for cached copies.
type Matrix struct {
	UserID            int64    `json:"userId"`
	PermissionVersion int64    `json:"permissionVersion"`
	Roles             []string `json:"roles"`
	Policies          []string `json:"policies"`
}

// UserStore supplies the user read model.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (users.User, error)
	List(ctx context.Context) ([]users.User, error)
}

// GraphStore supplies the policy graph joins. *policy.Repository satisfies it.
type GraphStore interface {
	RolesForUser(ctx context.Context, userID int64) ([]policy.Role, error)
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	PolicyNamesForRoleNames(ctx context.Context, roleNames []string) ([]string, error)
	EndpointIDsForRoleNames(ctx context.Context, roleNames []string) ([]int64, error)
	RolePoliciesForRole(ctx context.Context, roleID int64) ([]policy.Policy, error)
	EndpointIDsByPolicy(ctx context.Context, policyIDs []int64) (map[int64][]int64, error)
}

// PageStore supplies the UI graph. *uiconfig.Repository satisfies it.
type PageStore interface {
	ListActivePages(ctx context.Context) ([]uiconfig.Page, error)
	FindPage(ctx context.Context, id int64) (uiconfig.Page, error)
	ActiveActionsForPage(ctx context.Context, pageID int64) ([]uiconfig.Action, error)
	ActiveActionsForPages(ctx context.Context, pageIDs []int64) (map[int64][]uiconfig.Action, error)
	ActiveActionsForEndpointIDs(ctx context.Context, endpointIDs []int64) ([]uiconfig.Action, error)
}

// EndpointStore supplies catalog rows by id. *catalog.Repository satisfies it.
type EndpointStore interface {
	FindByIDs(ctx context.Context, ids []int64) ([]catalog.Endpoint, error)
	ListAll(ctx context.Context) ([]catalog.Endpoint, error)
}

// Builder materializes per-user authorization views from the graph stores.
type Builder struct {
	users     UserStore
	graph     GraphStore
	pages     PageStore
	endpoints EndpointStore
	now       func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(users UserStore, graph GraphStore, pages PageStore, endpoints EndpointStore) *Builder {
	return &Builder{
		users:     users,
		graph:     graph,
		pages:     pages,
		endpoints: endpoints,
		now:       time.Now,
	}
}

// Matrix builds the enforcement matrix for a user. Two bulk joins, unioned in
// memory; role and policy names are sorted for stable serialization.
func (b *Builder) Matrix(ctx context.Context, userID int64) (Matrix, error) {
	u, err := b.users.FindByID(ctx, userID)
	if err != nil {
		return Matrix{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	roleNames, err := b.graph.RoleNamesForUser(ctx, userID)
	if err != nil {
		return Matrix{}, fmt.Errorf("roles for user %d: %w", userID, err)
	}

	policyNames, err := b.graph.PolicyNamesForRoleNames(ctx, roleNames)
	if err != nil {
		return Matrix{}, fmt.Errorf("policies for user %d: %w", userID, err)
	}

	sort.Strings(roleNames)
	sort.Strings(policyNames)
	if roleNames == nil {
		roleNames = []string{}
	}
	if policyNames == nil {
		policyNames = []string{}
	}
	return Matrix{
		UserID:            u.ID,
		PermissionVersion: u.PermissionVersion,
		Roles:             roleNames,
		Policies:          policyNames,
	}, nil
}

// userEndpointIDs computes the set of endpoint ids the user's roles reach.
func (b *Builder) userEndpointIDs(ctx context.Context, roleNames []string) (map[int64]struct{}, error) {
	ids, err := b.graph.EndpointIDsForRoleNames(ctx, roleNames)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
