package authz

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegis-identity/aegis/internal/policy"
)

// randomGraph builds a well-formed graph: unique names, acyclic pages, random
// edges. Deterministic for a given rng.
func randomGraph(rng *rand.Rand) *graph {
	g := newGraph()
	nUsers := 2 + rng.Intn(4)
	nRoles := 1 + rng.Intn(4)
	nPolicies := 1 + rng.Intn(5)
	nEndpoints := 1 + rng.Intn(6)
	nPages := 1 + rng.Intn(5)

	for i := 1; i <= nUsers; i++ {
		g.addUser(int64(i), fmt.Sprintf("user%d", i), int64(rng.Intn(10)))
	}
	for i := 1; i <= nRoles; i++ {
		g.addRole(int64(10+i), fmt.Sprintf("role%d", i), rng.Intn(4) != 0)
	}
	for i := 1; i <= nPolicies; i++ {
		g.addPolicy(int64(20+i), fmt.Sprintf("policy%d", i), rng.Intn(4) != 0)
	}
	for i := 1; i <= nEndpoints; i++ {
		g.addEndpoint(int64(30+i), "svc", "v1", "GET", fmt.Sprintf("/res%d/{id}", i), rng.Intn(4) != 0)
	}
	for i := 1; i <= nPages; i++ {
		var parent *int64
		// Parents only among earlier ids, so the hierarchy stays acyclic.
		if i > 1 && rng.Intn(2) == 0 {
			p := int64(40 + 1 + rng.Intn(i-1))
			parent = &p
		}
		addPage(g, int64(40+i), parent, fmt.Sprintf("page%d", i), rng.Intn(5), true)
	}

	for u := 1; u <= nUsers; u++ {
		for r := 1; r <= nRoles; r++ {
			if rng.Intn(3) == 0 {
				g.grantRole(int64(u), int64(10+r))
			}
		}
	}
	for r := 1; r <= nRoles; r++ {
		for p := 1; p <= nPolicies; p++ {
			if rng.Intn(3) == 0 {
				g.assignPolicy(int64(10+r), int64(20+p))
			}
		}
	}
	for e := 1; e <= nEndpoints; e++ {
		for p := 1; p <= nPolicies; p++ {
			if rng.Intn(3) == 0 {
				g.attachPolicy(int64(30+e), int64(20+p))
			}
		}
	}
	actionID := int64(0)
	for pg := 1; pg <= nPages; pg++ {
		for e := 1; e <= nEndpoints; e++ {
			if rng.Intn(3) == 0 {
				actionID++
				eid := int64(30 + e)
				addAction(g, actionID, int64(40+pg), &eid, fmt.Sprintf("act%d", actionID), rng.Intn(5))
			}
		}
	}
	return g
}

// closureEndpoints computes userEndpoints(u) straight from the relation
// definitions, independent of the store queries under test.
func closureEndpoints(g *graph, userID int64) map[int64]struct{} {
	grantedPolicies := map[int64]struct{}{}
	for _, roleID := range g.userRoles[userID] {
		role, ok := g.roles[roleID]
		if !ok || !role.IsActive {
			continue
		}
		for _, edge := range g.rolePolicies[roleID] {
			if !edge.active {
				continue
			}
			if p, ok := g.policies[edge.policyID]; ok && p.IsActive {
				grantedPolicies[p.ID] = struct{}{}
			}
		}
	}
	out := map[int64]struct{}{}
	for endpointID, pids := range g.endpointPolicies {
		e, ok := g.endpoints[endpointID]
		if !ok || !e.IsActive {
			continue
		}
		for _, pid := range pids {
			if p, ok := g.policies[pid]; !ok || !p.IsActive {
				continue
			}
			if _, granted := grantedPolicies[pid]; granted {
				out[endpointID] = struct{}{}
				break
			}
		}
	}
	return out
}

func TestRandomGraphTreeStaysWithinUserEndpoints(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		g := randomGraph(rng)
		b := fixedBuilder(g, time.Now())

		for userID := range g.users {
			expected := closureEndpoints(g, userID)
			payload, err := b.UserAuthorizations(context.Background(), userID)
			require.NoError(t, err)

			present := map[int64]bool{}
			for _, p := range payload.Pages {
				present[p.ID] = true
			}
			for _, p := range payload.Pages {
				if p.ParentID != nil {
					require.True(t, present[*p.ParentID],
						"trial %d user %d: parent of page %d missing", trial, userID, p.ID)
				}
				for _, a := range p.Actions {
					_, ok := expected[a.EndpointID]
					require.True(t, ok,
						"trial %d user %d: endpoint %d outside the user's closure", trial, userID, a.EndpointID)
				}
			}
		}
	}
}

func TestRandomGraphEngineMatchesClosure(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		g := randomGraph(rng)
		engine := policy.NewEngine(g, discardLogger())

		for endpointID, e := range g.endpoints {
			for userID := range g.users {
				roleNames, err := g.RoleNamesForUser(context.Background(), userID)
				require.NoError(t, err)
				allowed, err := engine.EvaluateEndpointAccess(context.Background(), endpointID, roleNames)
				require.NoError(t, err)

				_, inClosure := closureEndpoints(g, userID)[endpointID]
				// The engine does not consult endpoint activity; the closure
				// does. They agree exactly on active endpoints.
				if e.IsActive {
					require.Equal(t, inClosure, allowed,
						"trial %d user %d endpoint %d", trial, userID, endpointID)
				} else {
					require.False(t, inClosure)
				}
			}
		}
	}
}

func TestRandomGraphAssignmentGrowsAccessMonotonically(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 30; trial++ {
		g := randomGraph(rng)

		var roleID, policyID int64
		for id, r := range g.roles {
			if r.IsActive {
				roleID = id
				break
			}
		}
		for id, p := range g.policies {
			if p.IsActive {
				policyID = id
				break
			}
		}
		if roleID == 0 || policyID == 0 {
			continue
		}

		before := map[int64]map[int64]struct{}{}
		for userID := range g.users {
			before[userID] = closureEndpoints(g, userID)
		}

		g.assignPolicy(roleID, policyID)

		for userID := range g.users {
			after := closureEndpoints(g, userID)
			for endpointID := range before[userID] {
				_, still := after[endpointID]
				require.True(t, still,
					"trial %d user %d: endpoint %d lost after policy grant", trial, userID, endpointID)
			}
		}
	}
}
