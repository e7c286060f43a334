package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Handler exposes role and catalog management over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountRoutes registers role management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermRolesViewAll, PermRolesManageAll))
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(PermRolesManageAll))
		r.Post("/roles", h.createRole)
		r.Patch("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deleteRole)
		r.Put("/roles/{id}/permissions", h.assignPermissions)
	})
}

type roleResponse struct {
	ID          int64    `json:"id"`
	TenantID    int64    `json:"tenant_id"`
	Name        string   `json:"name"`
	HomePath    string   `json:"home_path"`
	Permissions []string `json:"permissions,omitempty"`
}

func toRoleResponse(role Role, keys []string) roleResponse {
	return roleResponse{
		ID:          role.ID,
		TenantID:    role.TenantID,
		Name:        role.Name,
		HomePath:    role.HomePath,
		Permissions: keys,
	}
}

// listPermissions returns the permission catalog.
func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	grants := h.service.Permissions()
	type permission struct {
		Key         string `json:"key"`
		Description string `json:"description"`
	}
	out := make([]permission, 0, len(grants))
	for _, g := range grants {
		out = append(out, permission{Key: g.Key.String(), Description: g.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

// listRoles returns the roles of the targeted tenant.
func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	access, _ := AccessFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), access, tenantParam(r))
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

// getRole returns one role with its permissions.
func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	access, _ := AccessFromContext(r.Context())
	role, err := h.service.GetRole(r.Context(), access, tenantParam(r), id)
	if err != nil {
		h.logger.Error("get role", slog.Any("error", err), slog.Int64("role_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role.Role, role.Permissions))
}

type createRoleRequest struct {
	TenantID    int64    `json:"tenant_id"`
	Name        string   `json:"name" validate:"required,max=120"`
	HomePath    string   `json:"home_path" validate:"omitempty,startswith=/"`
	Permissions []string `json:"permissions"`
}

// createRole creates a role with an initial permission set.
func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	access, _ := AccessFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), access, req.TenantID, req.Name, req.HomePath, req.Permissions)
	if err != nil {
		h.logger.Error("create role", slog.Any("error", err), slog.String("name", req.Name))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role.Role, role.Permissions))
}

type updateRoleRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=120"`
	HomePath *string `json:"home_path" validate:"omitempty,startswith=/"`
}

// updateRole patches role metadata.
func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}
	access, _ := AccessFromContext(r.Context())
	role, err := h.service.UpdateRole(r.Context(), access, tenantParam(r), id, RolePatch{Name: req.Name, HomePath: req.HomePath})
	if err != nil {
		h.logger.Error("update role", slog.Any("error", err), slog.Int64("role_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role, nil))
}

type assignPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

// assignPermissions replaces the role's permission set.
func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req assignPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	access, _ := AccessFromContext(r.Context())
	role, err := h.service.AssignPermissions(r.Context(), access, tenantParam(r), id, req.Permissions)
	if err != nil {
		h.logger.Error("assign permissions", slog.Any("error", err), slog.Int64("role_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role.Role, role.Permissions))
}

// deleteRole removes an unreferenced role.
func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	access, _ := AccessFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), access, tenantParam(r), id); err != nil {
		h.logger.Error("delete role", slog.Any("error", err), slog.Int64("role_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// tenantParam reads the optional tenant_id query parameter. Only super-admins
// may target a tenant other than their own; the service enforces that.
func tenantParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	return id
}
