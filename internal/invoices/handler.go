package invoices

import (
	"encoding/csv"
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

// Handler manages invoice endpoints.
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

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInvoicesViewOwn, rbac.PermInvoicesViewAll))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoicesExportAll))
		r.Get("/export", h.export)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInvoicesCreateOwn, rbac.PermInvoicesCreateAll))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInvoicesUpdateOwn, rbac.PermInvoicesUpdateAll))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoicesDeleteAll))
		r.Delete("/{id}", h.remove)
	})
}

type invoiceResponse struct {
	ID          int64  `json:"id"`
	TenantID    int64  `json:"tenant_id"`
	AgencyID    int64  `json:"agency_id"`
	Number      string `json:"number"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      Status `json:"status"`
	IssuedOn    string `json:"issued_on"`
	DueOn       string `json:"due_on"`
	Notes       string `json:"notes,omitempty"`
}

func toResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:          inv.ID,
		TenantID:    inv.TenantID,
		AgencyID:    inv.AgencyID,
		Number:      inv.Number,
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
		Status:      inv.Status,
		IssuedOn:    inv.IssuedOn.Format("2006-01-02"),
		DueOn:       inv.DueOn.Format("2006-01-02"),
		Notes:       inv.Notes,
	}
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Status: Status(q.Get("status"))}
	filters.AgencyID, _ = strconv.ParseInt(q.Get("agency_id"), 10, 64)
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	result, err := h.service.List(r.Context(), access, tenantParam(r), parseFilters(r))
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]invoiceResponse, 0, len(result.Rows))
	for _, inv := range result.Rows {
		rows = append(rows, toResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices": rows,
		"page":     result.Page,
		"has_next": result.HasNext,
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	invoices, err := h.service.Export(r.Context(), access, tenantParam(r), parseFilters(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "agency_id", "number", "amount_cents", "currency", "status", "issued_on", "due_on"})
	for _, inv := range invoices {
		_ = cw.Write([]string{
			strconv.FormatInt(inv.ID, 10),
			strconv.FormatInt(inv.AgencyID, 10),
			inv.Number,
			strconv.FormatInt(inv.AmountCents, 10),
			inv.Currency,
			string(inv.Status),
			inv.IssuedOn.Format("2006-01-02"),
			inv.DueOn.Format("2006-01-02"),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("export invoices", slog.Any("error", err))
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	inv, err := h.service.Get(r.Context(), access, tenantParam(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inv))
}

type invoiceRequest struct {
	AgencyID    int64  `json:"agency_id"`
	Number      string `json:"number" validate:"required,max=64"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Status      string `json:"status" validate:"omitempty,oneof=draft issued paid void"`
	IssuedOn    string `json:"issued_on" validate:"required,datetime=2006-01-02"`
	DueOn       string `json:"due_on" validate:"required,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"max=2000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	issued, _ := time.Parse("2006-01-02", req.IssuedOn)
	due, _ := time.Parse("2006-01-02", req.DueOn)

	access, _ := rbac.AccessFromContext(r.Context())
	inv, err := h.service.Create(r.Context(), access, tenantParam(r), CreateInput{
		AgencyID:    req.AgencyID,
		Number:      req.Number,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		IssuedOn:    issued,
		DueOn:       due,
		Notes:       req.Notes,
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	issued, _ := time.Parse("2006-01-02", req.IssuedOn)
	due, _ := time.Parse("2006-01-02", req.DueOn)

	access, _ := rbac.AccessFromContext(r.Context())
	inv, err := h.service.Update(r.Context(), access, tenantParam(r), id, UpdateInput{
		Number:      req.Number,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Status:      Status(req.Status),
		IssuedOn:    issued,
		DueOn:       due,
		Notes:       req.Notes,
	})
	if err != nil {
		h.logger.Error("update invoice", slog.Any("error", err), slog.Int64("invoice_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
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
