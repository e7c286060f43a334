package auth

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, sessionManager: sessions, validator: validate}
}

// MountRoutes registers auth routes on provided router. Login carries its own
// rate limit on top of the global one; it is the only unauthenticated write.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", shared.UserSafeMessage(shared.ErrValidation))
		return
	}

	principal, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetUser(strconv.FormatInt(principal.ID, 10))

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, principal.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":   principal.ID,
		"tenant_id": principal.TenantID,
		"name":      principal.Name,
		"home_path": principal.RoleHomePath,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe reports the caller's resolved access: who they are and what they
// hold. UIs use it to decide what to render.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	access, ok := rbac.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	keys := make([]string, 0, len(access.Keys))
	for key := range access.Keys {
		keys = append(keys, key.String())
	}
	sort.Strings(keys)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":        access.PrincipalID,
		"tenant_id":      access.TenantID,
		"is_super_admin": access.IsSuperAdmin,
		"permissions":    keys,
	})
}
