package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/StreallyX/payroll-saas-sub000/internal/audit/http"
	"github.com/StreallyX/payroll-saas-sub000/internal/auth"
	"github.com/StreallyX/payroll-saas-sub000/internal/identity"
	"github.com/StreallyX/payroll-saas-sub000/internal/invoices"
	"github.com/StreallyX/payroll-saas-sub000/internal/observability"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
	"github.com/StreallyX/payroll-saas-sub000/internal/timesheets"
	"github.com/StreallyX/payroll-saas-sub000/internal/users"
	"github.com/StreallyX/payroll-saas-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Resolver       *identity.Resolver

	AuthHandler       *auth.Handler
	RBACHandler       *rbac.Handler
	UsersHandler      *users.Handler
	AuditHandler      *audithttp.Handler
	TimesheetsHandler *timesheets.Handler
	InvoicesHandler   *invoices.Handler
	JobsHandler       *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults. Every route
// below /auth sees a hydrated access context; the per-module permission
// groups do the actual gating.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(identity.Hydrate(params.Resolver, params.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.RBACHandler != nil {
		params.RBACHandler.MountRoutes(r)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.TimesheetsHandler != nil {
		r.Route("/timesheets", params.TimesheetsHandler.MountRoutes)
	}
	if params.InvoicesHandler != nil {
		r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
