package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/StreallyX/payroll-saas-sub000/internal/app"
	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/auth"
	jobmetrics "github.com/StreallyX/payroll-saas-sub000/internal/jobs"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/cache"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
	"github.com/StreallyX/payroll-saas-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := jobmetrics.NewMetrics(nil)

	sessionStore := auth.NewSessionStore(pool)
	auditService := audit.NewService(audit.NewRepository(pool))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionPurge, Handler: jobs.NewSessionPurgeHandler(sessionStoreAdapter{sessionStore}, metrics, logger)},
			{Type: jobs.TaskAuditWarmup, Handler: jobs.NewAuditWarmupHandler(auditService, redisClient, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: jobs.NewSessionPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "15 1 * * *", Task: jobs.NewAuditWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// sessionStoreAdapter narrows the session store to the purge task's needs.
type sessionStoreAdapter struct {
	store *auth.PGSessionStore
}

func (a sessionStoreAdapter) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredSessions(ctx)
}
