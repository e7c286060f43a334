package timesheets

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Handler manages timesheet endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountRoutes registers timesheet routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTimesheetsViewOwn, rbac.PermTimesheetsViewAll))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTimesheetsCreateOwn, rbac.PermTimesheetsUpdateAll))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTimesheetsUpdateOwn, rbac.PermTimesheetsUpdateAll))
		r.Put("/{id}", h.update)
		r.Post("/{id}/submit", h.submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermTimesheetsApproveAll))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermTimesheetsDeleteAll))
		r.Delete("/{id}", h.remove)
	})
}

type timesheetResponse struct {
	ID           int64   `json:"id"`
	TenantID     int64   `json:"tenant_id"`
	ContractorID int64   `json:"contractor_id"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
	Hours        float64 `json:"hours"`
	Status       Status  `json:"status"`
	Notes        string  `json:"notes,omitempty"`
}

func toResponse(ts Timesheet) timesheetResponse {
	return timesheetResponse{
		ID:           ts.ID,
		TenantID:     ts.TenantID,
		ContractorID: ts.ContractorID,
		PeriodStart:  ts.PeriodStart.Format("2006-01-02"),
		PeriodEnd:    ts.PeriodEnd.Format("2006-01-02"),
		Hours:        ts.Hours,
		Status:       ts.Status,
		Notes:        ts.Notes,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{Status: Status(q.Get("status"))}
	filters.ContractorID, _ = strconv.ParseInt(q.Get("contractor_id"), 10, 64)
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.List(r.Context(), access, tenantParam(r), filters)
	if err != nil {
		h.logger.Error("list timesheets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]timesheetResponse, 0, len(result.Rows))
	for _, ts := range result.Rows {
		rows = append(rows, toResponse(ts))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"timesheets": rows,
		"page":       result.Page,
		"has_next":   result.HasNext,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid timesheet id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	ts, err := h.service.Get(r.Context(), access, tenantParam(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ts))
}

type timesheetRequest struct {
	ContractorID int64   `json:"contractor_id"`
	PeriodStart  string  `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd    string  `json:"period_end" validate:"required,datetime=2006-01-02"`
	Hours        float64 `json:"hours" validate:"required,gt=0"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req timesheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	start, _ := time.Parse("2006-01-02", req.PeriodStart)
	end, _ := time.Parse("2006-01-02", req.PeriodEnd)

	access, _ := rbac.AccessFromContext(r.Context())
	ts, err := h.service.Create(r.Context(), access, tenantParam(r), CreateInput{
		ContractorID: req.ContractorID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Hours:        req.Hours,
		Notes:        req.Notes,
	})
	if err != nil {
		h.logger.Error("create timesheet", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(ts))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid timesheet id")
		return
	}
	var req timesheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	start, _ := time.Parse("2006-01-02", req.PeriodStart)
	end, _ := time.Parse("2006-01-02", req.PeriodEnd)

	access, _ := rbac.AccessFromContext(r.Context())
	ts, err := h.service.Update(r.Context(), access, tenantParam(r), id, UpdateInput{
		PeriodStart: start,
		PeriodEnd:   end,
		Hours:       req.Hours,
		Notes:       req.Notes,
	})
	if err != nil {
		h.logger.Error("update timesheet", slog.Any("error", err), slog.Int64("timesheet_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ts))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, access rbac.Access, tenantID, id int64) (Timesheet, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid timesheet id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	ts, err := fn(r.Context(), access, tenantParam(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ts))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid timesheet id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	if err := h.service.Delete(r.Context(), access, tenantParam(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func tenantParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	return id
}
