package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/policy"
)

const testInternalToken = "sekrit"

func newInternalRouter(g *graph) http.Handler {
	logger := discardLogger()
	matcher := catalog.NewMatcher(g)
	engine := policy.NewEngine(g, logger)
	b := fixedBuilder(g, time.Now())
	h := NewInternalHandler(logger, matcher, g, graphCatalog{g}, engine, b, testInternalToken)
	r := chi.NewRouter()
	r.Route("/internal/authz", h.MountRoutes)
	return r
}

func internalGet(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Internal-Token", testInternalToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInternalRoutesRequireToken(t *testing.T) {
	router := newInternalRouter(billingGraph())

	req := httptest.NewRequest(http.MethodGet, "/internal/authz/endpoints/metadata?method=GET&path=/invoices/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("X-Internal-Token", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEndpointMetadataFound(t *testing.T) {
	router := newInternalRouter(billingGraph())
	rec := internalGet(t, router, "/internal/authz/endpoints/metadata?method=GET&path=/api/billing/v1/invoices/42")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp endpointMetadataResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.EndpointFound)
	require.NotNil(t, resp.EndpointID)
	require.Equal(t, int64(30), *resp.EndpointID)
	require.True(t, resp.HasPolicies)
	require.Equal(t, []int64{20}, resp.PolicyIDs)
}

func TestEndpointMetadataNotFound(t *testing.T) {
	router := newInternalRouter(billingGraph())
	rec := internalGet(t, router, "/internal/authz/endpoints/metadata?method=DELETE&path=/nope")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp endpointMetadataResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.EndpointFound)
	require.Nil(t, resp.EndpointID)
	require.False(t, resp.HasPolicies)
	require.Empty(t, resp.PolicyIDs)
}

func TestEndpointMetadataRequiresPath(t *testing.T) {
	router := newInternalRouter(billingGraph())
	rec := internalGet(t, router, "/internal/authz/endpoints/metadata?method=GET")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateEndpointAccess(t *testing.T) {
	router := newInternalRouter(billingGraph())

	cases := []struct {
		name    string
		body    string
		allowed bool
	}{
		{"granted", `{"endpointId":30,"roles":["R_FIN"]}`, true},
		{"wrong role", `{"endpointId":30,"roles":["R_EMPTY"]}`, false},
		{"case sensitive", `{"endpointId":30,"roles":["r_fin"]}`, false},
		{"unguarded", `{"endpointId":31,"roles":["R_FIN"]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/authz/policies/evaluate", strings.NewReader(tc.body))
			req.Header.Set("X-Internal-Token", testInternalToken)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp evaluateResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, tc.allowed, resp.Allowed)
		})
	}
}

func TestEvaluateRejectsInvalidBody(t *testing.T) {
	router := newInternalRouter(billingGraph())
	for _, body := range []string{`not json`, `{"roles":["R_FIN"]}`, `{"endpointId":30}`} {
		req := httptest.NewRequest(http.MethodPost, "/internal/authz/policies/evaluate", strings.NewReader(body))
		req.Header.Set("X-Internal-Token", testInternalToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestUserMatrixRoute(t *testing.T) {
	router := newInternalRouter(billingGraph())
	rec := internalGet(t, router, "/internal/authz/users/2/matrix")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `"5"`, rec.Header().Get("ETag"))

	var m Matrix
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	require.Equal(t, []string{"R_FIN"}, m.Roles)
	require.Equal(t, []string{"P_READ"}, m.Policies)
}

func TestEndpointDetailListsLinkedPolicies(t *testing.T) {
	g := billingGraph()
	g.addPolicy(21, "P_OLD", false)
	g.attachPolicy(30, 21)
	router := newInternalRouter(g)

	rec := internalGet(t, router, "/internal/authz/endpoints/30")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp endpointDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, int64(30), resp.Endpoint.ID)
	// Inactive links stay visible for inspection.
	require.Len(t, resp.Policies, 2)
}
