package authz

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/platform/httpx"
	"github.com/aegis-identity/aegis/internal/policy"
)

// InternalStore is the graph slice the service-to-service surface reads.
// *policy.Repository satisfies it.
type InternalStore interface {
	PolicyIDsForEndpoint(ctx context.Context, endpointID int64) ([]int64, error)
	PoliciesForEndpoint(ctx context.Context, endpointID int64) ([]policy.Policy, error)
}

// CatalogReader fetches single catalog rows. *catalog.Repository satisfies it.
type CatalogReader interface {
	FindByID(ctx context.Context, id int64) (catalog.Endpoint, error)
}

// InternalHandler serves the service-to-service authorization API. Routes are
// guarded by a shared token header.
type InternalHandler struct {
	logger   *slog.Logger
	matcher  EndpointResolver
	store    InternalStore
	catalog  CatalogReader
	engine   Evaluator
	builder  *Builder
	token    string
	validate *validator.Validate
}

// NewInternalHandler builds an InternalHandler.
func NewInternalHandler(logger *slog.Logger, matcher EndpointResolver, store InternalStore, catalogReader CatalogReader, engine Evaluator, builder *Builder, token string) *InternalHandler {
	return &InternalHandler{
		logger:   logger,
		matcher:  matcher,
		store:    store,
		catalog:  catalogReader,
		engine:   engine,
		builder:  builder,
		token:    token,
		validate: validator.New(),
	}
}

// MountRoutes registers the internal routes under /internal/authz.
func (h *InternalHandler) MountRoutes(r chi.Router) {
	r.Use(h.requireToken)
	r.Get("/endpoints/metadata", h.endpointMetadata)
	r.Get("/endpoints/{endpointID}", h.endpointDetail)
	r.Post("/policies/evaluate", h.evaluate)
	r.Get("/users/{userID}/matrix", h.userMatrix)
}

func (h *InternalHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Token")
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid internal token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type endpointMetadataResponse struct {
	EndpointFound bool    `json:"endpointFound"`
	EndpointID    *int64  `json:"endpointId,omitempty"`
	HasPolicies   bool    `json:"hasPolicies"`
	PolicyIDs     []int64 `json:"policyIds"`
}

func (h *InternalHandler) endpointMetadata(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("method")
	path := r.URL.Query().Get("path")
	if path == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "path is required")
		return
	}

	resp := endpointMetadataResponse{PolicyIDs: []int64{}}
	endpoint, err := h.matcher.Resolve(r.Context(), method, path)
	if err != nil {
		if errors.Is(err, catalog.ErrEndpointNotFound) {
			httpx.JSON(w, http.StatusOK, resp)
			return
		}
		h.logger.Error("resolve endpoint", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	policyIDs, err := h.store.PolicyIDsForEndpoint(r.Context(), endpoint.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if policyIDs == nil {
		policyIDs = []int64{}
	}
	id := endpoint.ID
	resp.EndpointFound = true
	resp.EndpointID = &id
	resp.HasPolicies = len(policyIDs) > 0
	resp.PolicyIDs = policyIDs
	httpx.JSON(w, http.StatusOK, resp)
}

type endpointDetailResponse struct {
	Endpoint catalog.Endpoint `json:"endpoint"`
	Policies []policy.Policy  `json:"policies"`
}

func (h *InternalHandler) endpointDetail(w http.ResponseWriter, r *http.Request) {
	endpointID, err := strconv.ParseInt(chi.URLParam(r, "endpointID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "endpoint id must be numeric")
		return
	}
	endpoint, err := h.catalog.FindByID(r.Context(), endpointID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	policies, err := h.store.PoliciesForEndpoint(r.Context(), endpointID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	httpx.JSON(w, http.StatusOK, endpointDetailResponse{Endpoint: endpoint, Policies: policies})
}

type evaluateRequest struct {
	EndpointID int64    `json:"endpointId" validate:"required,gt=0"`
	Roles      []string `json:"roles" validate:"required"`
}

type evaluateResponse struct {
	EndpointID int64 `json:"endpointId"`
	Allowed    bool  `json:"allowed"`
}

func (h *InternalHandler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allowed, err := h.engine.EvaluateEndpointAccess(r.Context(), req.EndpointID, req.Roles)
	if err != nil {
		h.logger.Error("evaluate endpoint access", slog.Int64("endpoint_id", req.EndpointID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, evaluateResponse{EndpointID: req.EndpointID, Allowed: allowed})
}

func (h *InternalHandler) userMatrix(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be numeric")
		return
	}
	m, err := h.builder.Matrix(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.WriteCached(w, r, httpx.ETagFromVersion(m.PermissionVersion), m)
}
