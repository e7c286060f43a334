package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Handler manages principal administration endpoints.
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

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermUsersViewAll, rbac.PermUsersManageAll))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermUsersManageAll))
		r.Post("/", h.create)
		r.Put("/{id}/role", h.assignRole)
		r.Delete("/{id}/role", h.removeRole)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Post("/{id}/activate", h.activate)
	})
}

type userResponse struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleID   int64  `json:"role_id,omitempty"`
	RoleName string `json:"role_name,omitempty"`
	IsActive bool   `json:"is_active"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:       u.ID,
		TenantID: u.TenantID,
		Email:    u.Email,
		Name:     u.Name,
		RoleID:   u.RoleID,
		RoleName: u.RoleName,
		IsActive: u.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, _ := rbac.AccessFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), access, tenantParam(r))
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), access, tenantParam(r), id)
	if err != nil {
		h.logger.Error("get user", slog.Any("error", err), slog.Int64("user_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

type createUserRequest struct {
	TenantID         int64  `json:"tenant_id"`
	Email            string `json:"email" validate:"required,email"`
	Name             string `json:"name" validate:"required,max=200"`
	Password         string `json:"password" validate:"required,min=8"`
	RoleID           int64  `json:"role_id"`
	ContractorID     int64  `json:"contractor_id"`
	AgencyID         int64  `json:"agency_id"`
	CompanyID        int64  `json:"company_id"`
	PayrollPartnerID int64  `json:"payroll_partner_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	user, err := h.service.CreateUser(r.Context(), access, CreateUserInput{
		TenantID: req.TenantID,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		RoleID:   req.RoleID,
		Anchors: rbac.Anchors{
			ContractorID:     req.ContractorID,
			AgencyID:         req.AgencyID,
			CompanyID:        req.CompanyID,
			PayrollPartnerID: req.PayrollPartnerID,
		},
	})
	if err != nil {
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	if err := h.service.AssignRole(r.Context(), access, tenantParam(r), id, req.RoleID); err != nil {
		h.logger.Error("assign role", slog.Any("error", err), slog.Int64("user_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	if err := h.service.RemoveRole(r.Context(), access, tenantParam(r), id); err != nil {
		h.logger.Error("remove role", slog.Any("error", err), slog.Int64("user_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	access, _ := rbac.AccessFromContext(r.Context())
	if err := h.service.SetActive(r.Context(), access, tenantParam(r), id, active); err != nil {
		h.logger.Error("set user active", slog.Any("error", err), slog.Int64("user_id", id))
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
