package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	jobmetrics "github.com/StreallyX/payroll-saas-sub000/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge removes expired sessions from the store.
	TaskSessionPurge = "sessions:purge"
	// TaskAuditWarmup precomputes audit dashboards per tenant.
	TaskAuditWarmup = "audit:warmup"
)

// SessionPurger deletes sessions past their expiry.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// AuditSource exposes the audit aggregates the warmup task materialises.
type AuditSource interface {
	Stats(ctx context.Context, tenantID int64, from, to time.Time, recentN int) (audit.Stats, error)
	ActiveTenants(ctx context.Context, since time.Time) ([]int64, error)
}

// NewSessionPurgeTask constructs the session purge task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil)
}

// NewAuditWarmupTask constructs the audit warmup task.
func NewAuditWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAuditWarmup, nil)
}

// NewSessionPurgeHandler returns the handler for TaskSessionPurge.
func NewSessionPurgeHandler(purger SessionPurger, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("session_purge")
		removed, err := purger.PurgeExpiredSessions(ctx)
		if err != nil {
			logger.Error("session purge failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if removed > 0 {
			logger.Info("expired sessions purged", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}

type warmStats struct {
	ByAction   []audit.ActionCount   `json:"by_action"`
	ByResource []audit.ResourceCount `json:"by_resource"`
	Generated  time.Time             `json:"generated_at"`
}

// NewAuditWarmupHandler returns the handler for TaskAuditWarmup. For every
// tenant with recent audit activity it materialises the 30-day aggregates
// into Redis so dashboard reads stay off the hot path.
func NewAuditWarmupHandler(source AuditSource, client *redis.Client, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("audit_warmup")
		now := time.Now().UTC()
		tenants, err := source.ActiveTenants(ctx, now.AddDate(0, 0, -30))
		if err != nil {
			return tracker.End(err)
		}
		for _, tenantID := range tenants {
			stats, err := source.Stats(ctx, tenantID, now.AddDate(0, 0, -30), now, 10)
			if err != nil {
				logger.Error("audit warmup failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
				return tracker.End(err)
			}
			payload, err := json.Marshal(warmStats{
				ByAction:   stats.ByAction,
				ByResource: stats.ByResource,
				Generated:  now,
			})
			if err != nil {
				return tracker.End(err)
			}
			key := warmupKey(tenantID)
			if err := client.Set(ctx, key, payload, 2*time.Hour).Err(); err != nil {
				logger.Error("audit warmup store failed", slog.String("key", key), slog.Any("error", err))
				return tracker.End(err)
			}
		}
		logger.Info("audit warmup complete", slog.Int("tenants", len(tenants)))
		return tracker.End(nil)
	}
}

func warmupKey(tenantID int64) string {
	return "audit:stats:" + itoa64(tenantID)
}
