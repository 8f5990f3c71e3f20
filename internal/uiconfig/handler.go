package uiconfig

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

// Handler exposes page and action administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers page admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPages)
	r.Post("/", h.createPage)
	r.Get("/{id}", h.getPage)
	r.Put("/{id}", h.updatePage)
	r.Delete("/{id}", h.deletePage)
	r.Get("/{id}/actions", h.listActions)
	r.Post("/{id}/actions", h.createAction)
	r.Put("/{id}/actions/{actionID}", h.updateAction)
	r.Delete("/{id}/actions/{actionID}", h.deleteAction)
}

type pageRequest struct {
	ParentID     *int64 `json:"parentId"`
	Key          string `json:"key"`
	Label        string `json:"label"`
	Route        string `json:"route"`
	Icon         string `json:"icon"`
	DisplayOrder int    `json:"displayOrder"`
	IsMenuItem   *bool  `json:"isMenuItem"`
	IsActive     *bool  `json:"isActive"`
}

func (req pageRequest) toPage(id int64) Page {
	menu, active := true, true
	if req.IsMenuItem != nil {
		menu = *req.IsMenuItem
	}
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Page{
		ID:           id,
		ParentID:     req.ParentID,
		Key:          req.Key,
		Label:        req.Label,
		Route:        req.Route,
		Icon:         req.Icon,
		DisplayOrder: req.DisplayOrder,
		IsMenuItem:   menu,
		IsActive:     active,
	}
}

type actionRequest struct {
	EndpointID   *int64 `json:"endpointId"`
	Label        string `json:"label"`
	Action       string `json:"action"`
	Icon         string `json:"icon"`
	Variant      string `json:"variant"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     *bool  `json:"isActive"`
}

func (req actionRequest) toAction(id, pageID int64) Action {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Action{
		ID:           id,
		PageID:       pageID,
		EndpointID:   req.EndpointID,
		Label:        req.Label,
		Action:       req.Action,
		Icon:         req.Icon,
		Variant:      req.Variant,
		DisplayOrder: req.DisplayOrder,
		IsActive:     active,
	}
}

func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.service.ListPages(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if pages == nil {
		pages = []Page{}
	}
	httpx.JSON(w, http.StatusOK, pages)
}

func (h *Handler) getPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.GetPage(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	p, err := h.service.CreatePage(r.Context(), req.toPage(0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	p, err := h.service.UpdatePage(r.Context(), req.toPage(id))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePage(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actions, err := h.service.ActionsForPage(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if actions == nil {
		actions = []Action{}
	}
	httpx.JSON(w, http.StatusOK, actions)
}

func (h *Handler) createAction(w http.ResponseWriter, r *http.Request) {
	pageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	a, err := h.service.CreateAction(r.Context(), req.toAction(0, pageID))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("page action created",
		slog.Int64("page_id", pageID), slog.Int64("action_id", a.ID))
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) updateAction(w http.ResponseWriter, r *http.Request) {
	pageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actionID, ok := pathID(w, r, "actionID")
	if !ok {
		return
	}
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	a, err := h.service.UpdateAction(r.Context(), req.toAction(actionID, pageID))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) deleteAction(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(w, r, "id"); !ok {
		return
	}
	actionID, ok := pathID(w, r, "actionID")
	if !ok {
		return
	}
	if err := h.service.DeleteAction(r.Context(), actionID); err != nil {
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
