package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/StreallyX/payroll-saas-sub000/internal/app"
	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	audithttp "github.com/StreallyX/payroll-saas-sub000/internal/audit/http"
	"github.com/StreallyX/payroll-saas-sub000/internal/auth"
	"github.com/StreallyX/payroll-saas-sub000/internal/identity"
	"github.com/StreallyX/payroll-saas-sub000/internal/invoices"
	"github.com/StreallyX/payroll-saas-sub000/internal/observability"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/cache"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
	"github.com/StreallyX/payroll-saas-sub000/internal/timesheets"
	"github.com/StreallyX/payroll-saas-sub000/internal/users"
	"github.com/StreallyX/payroll-saas-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "payroll_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	validate := validator.New()

	metrics := observability.NewMetrics()

	catalog := rbac.NewCatalog()
	rbacMiddleware := rbac.Middleware{Catalog: catalog, Logger: logger, Metrics: metrics}

	identityRepo := identity.NewRepository(dbpool)
	accessCache := identity.NewAccessCache(redisClient, cfg.AccessCacheTTL)
	resolver := identity.NewResolver(identityRepo, accessCache, logger)

	recorder := audit.NewRecorder()

	rbacRepo := rbac.NewRepository(dbpool, recorder)
	rbacService := rbac.NewService(rbacRepo, catalog, accessCache, logger)
	rbacHandler := rbac.NewHandler(logger, rbacService, validate, rbacMiddleware)

	sessionStore := auth.NewSessionStore(dbpool)
	authService := auth.NewService(identityRepo, sessionStore)
	authHandler := auth.NewHandler(logger, authService, sessionManager, validate)

	usersRepo := users.NewRepository(dbpool, recorder)
	usersService := users.NewService(usersRepo, accessCache, logger)
	usersHandler := users.NewHandler(logger, usersService, validate, rbacMiddleware)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService, rbacMiddleware)

	timesheetsRepo := timesheets.NewRepository(dbpool, recorder)
	timesheetsService := timesheets.NewService(timesheetsRepo, logger)
	timesheetsHandler := timesheets.NewHandler(logger, timesheetsService, validate, rbacMiddleware)

	invoicesRepo := invoices.NewRepository(dbpool, recorder)
	invoicesService := invoices.NewService(invoicesRepo, logger)
	invoicesHandler := invoices.NewHandler(logger, invoicesService, validate, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Resolver:          resolver,
		AuthHandler:       authHandler,
		RBACHandler:       rbacHandler,
		UsersHandler:      usersHandler,
		AuditHandler:      auditHandler,
		TimesheetsHandler: timesheetsHandler,
		InvoicesHandler:   invoicesHandler,
		JobsHandler:       jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
