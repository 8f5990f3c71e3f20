package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-identity/aegis/internal/catalog"
	"github.com/aegis-identity/aegis/internal/platform/httpx"
	"github.com/aegis-identity/aegis/internal/shared"
	"github.com/aegis-identity/aegis/internal/uiconfig"
	"github.com/aegis-identity/aegis/internal/users"
)

// Handler serves the discovery and audit surface.
type Handler struct {
	logger   *slog.Logger
	builder  *Builder
	resolver users.PrincipalResolver
	uiconf   *uiconfig.Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, builder *Builder, resolver users.PrincipalResolver, uiconf *uiconfig.Service) *Handler {
	return &Handler{logger: logger, builder: builder, resolver: resolver, uiconf: uiconf}
}

// MountRoutes registers the discovery routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/authorizations", h.myAuthorizations)
	r.Get("/meta/service-catalog", h.serviceCatalog)
	r.Get("/meta/endpoints", h.endpoints)
	r.Get("/meta/pages", h.pages)
	r.Get("/meta/user-access-matrix", h.allUserAccessMatrices)
	r.Get("/meta/user-access-matrix/{userID}", h.userAccessMatrix)
	r.Get("/meta/ui-access-matrix", h.allUIAccessMatrices)
	r.Get("/meta/ui-access-matrix/{pageID}", h.uiAccessMatrix)
}

func (h *Handler) myAuthorizations(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	userID, ok := h.resolver.UserID(r.Context(), principal)
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	payload, err := h.builder.UserAuthorizations(r.Context(), userID)
	if err != nil {
		h.logger.Error("build user authorizations", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.WriteCached(w, r, httpx.ETagFromVersion(payload.Version), payload)
}

func (h *Handler) serviceCatalog(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.builder.endpoints.ListAll(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pages, err := h.uiconf.ListActivePages(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if endpoints == nil {
		endpoints = []catalog.Endpoint{}
	}
	if pages == nil {
		pages = []uiconfig.Page{}
	}
	body := map[string]any{"endpoints": endpoints, "pages": pages}
	h.writeHashed(w, r, body)
}

// endpoints serves the full catalog, or the deduplicated endpoint set for one
// page when page_id is supplied. The per-page order follows the page's action
// order, first reference winning.
func (h *Handler) endpoints(w http.ResponseWriter, r *http.Request) {
	rawPageID := r.URL.Query().Get("page_id")
	if rawPageID == "" {
		endpoints, err := h.builder.endpoints.ListAll(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if endpoints == nil {
			endpoints = []catalog.Endpoint{}
		}
		h.writeHashed(w, r, endpoints)
		return
	}

	pageID, err := strconv.ParseInt(rawPageID, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "page_id must be numeric")
		return
	}
	ids, err := h.uiconf.EndpointIDsForPage(r.Context(), pageID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.builder.endpoints.FindByIDs(r.Context(), ids)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	byID := make(map[int64]catalog.Endpoint, len(rows))
	for _, e := range rows {
		byID[e.ID] = e
	}
	ordered := make([]catalog.Endpoint, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	h.writeHashed(w, r, ordered)
}

// PageNode is one node of the page hierarchy payload.
type PageNode struct {
	uiconfig.Page
	Children []PageNode `json:"children"`
}

func (h *Handler) pages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.uiconf.ListActivePages(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writeHashed(w, r, buildPageTree(pages))
}

func (h *Handler) userAccessMatrix(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be numeric")
		return
	}
	m, err := h.builder.UserAccessMatrix(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.WriteCached(w, r, httpx.ETagFromVersion(m.Version), m)
}

func (h *Handler) allUserAccessMatrices(w http.ResponseWriter, r *http.Request) {
	ms, err := h.builder.AllUserAccessMatrices(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writeHashed(w, r, ms)
}

func (h *Handler) uiAccessMatrix(w http.ResponseWriter, r *http.Request) {
	pageID, err := strconv.ParseInt(chi.URLParam(r, "pageID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "page id must be numeric")
		return
	}
	m, err := h.builder.UIAccessMatrix(r.Context(), pageID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.WriteCached(w, r, httpx.ETagFromVersion(m.Version), m)
}

func (h *Handler) allUIAccessMatrices(w http.ResponseWriter, r *http.Request) {
	ms, err := h.builder.AllUIAccessMatrices(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writeHashed(w, r, ms)
}

// writeHashed serves payloads without a version field under a content-hash
// ETag.
func (h *Handler) writeHashed(w http.ResponseWriter, r *http.Request, body any) {
	etag, err := httpx.ETagFromBody(body)
	if err != nil {
		h.logger.Error("compute etag", slog.Any("error", err))
		httpx.JSON(w, http.StatusOK, body)
		return
	}
	httpx.WriteCached(w, r, etag, body)
}

func buildPageTree(pages []uiconfig.Page) []PageNode {
	children := map[int64][]uiconfig.Page{}
	var roots []uiconfig.Page
	ids := make(map[int64]struct{}, len(pages))
	for _, p := range pages {
		ids[p.ID] = struct{}{}
	}
	for _, p := range pages {
		if p.ParentID != nil {
			if _, ok := ids[*p.ParentID]; ok {
				children[*p.ParentID] = append(children[*p.ParentID], p)
				continue
			}
		}
		roots = append(roots, p)
	}
	var build func(ps []uiconfig.Page) []PageNode
	build = func(ps []uiconfig.Page) []PageNode {
		out := make([]PageNode, 0, len(ps))
		for _, p := range ps {
			out = append(out, PageNode{Page: p, Children: build(children[p.ID])})
		}
		return out
	}
	return build(roots)
}
