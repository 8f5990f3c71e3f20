package policy

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
	"github.com/aegis-identity/aegis/internal/shared"
	"github.com/aegis-identity/aegis/internal/users"
)

// Handler exposes role and policy administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver users.PrincipalResolver
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver users.PrincipalResolver) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver}
}

// MountRoleRoutes registers role admin routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/{id}", h.getRole)
	r.Put("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
	r.Get("/{id}/policies", h.rolePolicies)
	r.Post("/{id}/policies/{policyID}", h.assignPolicy)
	r.Delete("/{id}/policies/{policyID}", h.removePolicy)
}

// MountPolicyRoutes registers policy admin routes.
func (h *Handler) MountPolicyRoutes(r chi.Router) {
	r.Get("/", h.listPolicies)
	r.Post("/", h.createPolicy)
	r.Get("/{id}", h.getPolicy)
	r.Put("/{id}", h.updatePolicy)
	r.Delete("/{id}", h.deletePolicy)
}

// MountEndpointPolicyRoutes registers the endpoint↔policy link routes,
// mounted under the endpoint admin tree.
func (h *Handler) MountEndpointPolicyRoutes(r chi.Router) {
	r.Get("/{id}/policies", h.endpointPolicies)
	r.Post("/{id}/policies/{policyID}", h.attachPolicy)
	r.Delete("/{id}/policies/{policyID}", h.detachPolicy)
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	role, err := h.service.UpdateRole(r.Context(), Role{ID: id, Name: req.Name, Description: req.Description, IsActive: active})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePolicies(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policies, err := h.service.PoliciesForRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpx.JSON(w, http.StatusOK, policies)
}

func (h *Handler) assignPolicy(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policyID, ok := pathID(w, r, "policyID")
	if !ok {
		return
	}
	var assignedBy *int64
	if principal := shared.PrincipalFromContext(r.Context()); principal != nil {
		if actorID, resolved := h.resolver.UserID(r.Context(), principal); resolved {
			assignedBy = &actorID
		}
	}
	if err := h.service.AssignPolicyToRole(r.Context(), roleID, policyID, assignedBy); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("policy assigned to role",
		slog.Int64("role_id", roleID), slog.Int64("policy_id", policyID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePolicy(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policyID, ok := pathID(w, r, "policyID")
	if !ok {
		return
	}
	if err := h.service.RemovePolicyFromRole(r.Context(), roleID, policyID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type policyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	IsActive    *bool  `json:"isActive"`
}

func (req policyRequest) toPolicy(id int64) Policy {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Policy{ID: id, Name: req.Name, Description: req.Description, Type: req.Type, IsActive: active}
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.service.ListPolicies(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpx.JSON(w, http.StatusOK, policies)
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	p, err := h.service.CreatePolicy(r.Context(), req.toPolicy(0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req policyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	p, err := h.service.UpdatePolicy(r.Context(), req.toPolicy(id))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePolicy(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) endpointPolicies(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policies, err := h.service.PoliciesForEndpoint(r.Context(), endpointID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpx.JSON(w, http.StatusOK, policies)
}

func (h *Handler) attachPolicy(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policyID, ok := pathID(w, r, "policyID")
	if !ok {
		return
	}
	if err := h.service.AttachPolicyToEndpoint(r.Context(), endpointID, policyID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("policy attached to endpoint",
		slog.Int64("endpoint_id", endpointID), slog.Int64("policy_id", policyID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPolicy(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	policyID, ok := pathID(w, r, "policyID")
	if !ok {
		return
	}
	if err := h.service.DetachPolicyFromEndpoint(r.Context(), endpointID, policyID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", key+" must be numeric")
		return 0, false
	}
	return id, true
}
