// Package http exposes the audit trail over read-only JSON endpoints.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Handler serves audit trail queries.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *audit.Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers audit routes. The trail is append-only; there are no
// mutating endpoints to mount.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAuditViewAll))
		r.Get("/", h.list)
		r.Get("/stats", h.stats)
		r.Get("/users/{id}", h.byActor)
		r.Get("/roles/{id}", h.byRole)
		r.Get("/{id}", h.getByID)
	})
}

type entryResponse struct {
	ID           int64          `json:"id"`
	TenantID     int64          `json:"tenant_id"`
	UserID       int64          `json:"user_id,omitempty"`
	Action       audit.Action   `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Changes      map[string]any `json:"changes,omitempty"`
	PerformedBy  int64          `json:"performed_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toEntryResponse(e audit.Entry) entryResponse {
	return entryResponse{
		ID:           e.ID,
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Changes:      e.Changes,
		PerformedBy:  e.PerformedBy,
		CreatedAt:    e.CreatedAt,
	}
}

func toResultResponse(res audit.Result) map[string]any {
	rows := make([]entryResponse, 0, len(res.Rows))
	for _, e := range res.Rows {
		rows = append(rows, toEntryResponse(e))
	}
	return map[string]any{
		"entries": rows,
		"paging": map[string]any{
			"page":      res.Paging.Page,
			"page_size": res.Paging.PageSize,
			"has_next":  res.Paging.HasNext,
		},
	}
}

// list returns a filtered page of the tenant's audit trail.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	tenant, err := targetTenant(access, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	q := r.URL.Query()
	filters := audit.Filters{
		TenantID:     tenant,
		Action:       audit.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	}
	filters.ActorID, _ = strconv.ParseInt(q.Get("actor_id"), 10, 64)
	filters.UserID, _ = strconv.ParseInt(q.Get("user_id"), 10, 64)
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if from := q.Get("from"); from != "" {
		filters.From, _ = time.Parse(time.RFC3339, from)
	}
	if to := q.Get("to"); to != "" {
		filters.To, _ = time.Parse(time.RFC3339, to)
	}

	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

// getByID returns one audit entry.
func (h *Handler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid audit entry id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	tenant, err := targetTenant(access, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.service.GetByID(r.Context(), tenant, id)
	if err != nil {
		h.logger.Error("get audit entry", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

// byActor returns entries performed by one principal.
func (h *Handler) byActor(w http.ResponseWriter, r *http.Request) {
	actorID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	tenant, err := targetTenant(access, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	result, err := h.service.ByActor(r.Context(), tenant, actorID, page, pageSize)
	if err != nil {
		h.logger.Error("list audit by actor", slog.Any("error", err), slog.Int64("actor_id", actorID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

// byRole returns the permission history of one role.
func (h *Handler) byRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	tenant, err := targetTenant(access, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	result, err := h.service.ByRole(r.Context(), tenant, roleID, page, pageSize)
	if err != nil {
		h.logger.Error("list audit by role", slog.Any("error", err), slog.Int64("role_id", roleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

// stats returns aggregate counts over a time window, defaulting to the last
// 30 days.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	tenant, err := targetTenant(access, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	q := r.URL.Query()
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if raw := q.Get("from"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			from = parsed
		}
	}
	if raw := q.Get("to"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			to = parsed
		}
	}
	recentN, _ := strconv.Atoi(q.Get("recent"))

	stats, err := h.service.Stats(r.Context(), tenant, from, to, recentN)
	if err != nil {
		h.logger.Error("audit stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	byAction := make(map[string]int64, len(stats.ByAction))
	for _, c := range stats.ByAction {
		byAction[string(c.Action)] = c.Count
	}
	byResource := make(map[string]int64, len(stats.ByResource))
	for _, c := range stats.ByResource {
		byResource[c.ResourceType] = c.Count
	}
	recent := make([]entryResponse, 0, len(stats.Recent))
	for _, e := range stats.Recent {
		recent = append(recent, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"by_action":   byAction,
		"by_resource": byResource,
		"recent":      recent,
		"from":        from,
		"to":          to,
	})
}

// targetTenant resolves which tenant's trail is being read. Tenant users read
// their own; super-admins name one with ?tenant_id.
func targetTenant(access rbac.Access, r *http.Request) (int64, error) {
	requested, _ := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	if access.IsSuperAdmin {
		if requested == 0 {
			return 0, fmt.Errorf("audit: super-admin must target a tenant: %w", shared.ErrValidation)
		}
		return requested, nil
	}
	if requested != 0 && requested != access.TenantID {
		return 0, shared.ErrForbidden
	}
	return access.TenantID, nil
}
