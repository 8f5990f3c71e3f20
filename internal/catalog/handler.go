package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// Handler exposes catalog administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/active", h.setActive)
	r.Delete("/{id}", h.remove)
}

type endpointRequest struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive"`
}

func (req endpointRequest) toEndpoint(id int64) Endpoint {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Endpoint{
		ID:          id,
		Service:     req.Service,
		Version:     req.Version,
		Method:      req.Method,
		Path:        req.Path,
		Description: req.Description,
		IsActive:    active,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if endpoints == nil {
		endpoints = []Endpoint{}
	}
	httpx.JSON(w, http.StatusOK, endpoints)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	created, err := h.service.Create(r.Context(), req.toEndpoint(0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("endpoint cataloged",
		slog.Int64("endpoint_id", created.ID),
		slog.String("method", created.Method),
		slog.String("path", created.Path))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req endpointRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	updated, err := h.service.Update(r.Context(), req.toEndpoint(id))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type activeRequest struct {
	IsActive bool `json:"isActive"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	updated, err := h.service.SetActive(r.Context(), id, req.IsActive)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be numeric")
		return 0, false
	}
	return id, true
}
