package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// PGRepository provides PostgreSQL backed read access to permission_audits.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, tenant_id, COALESCE(user_id, 0), action, resource_type, resource_id, changes, performed_by, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var action string
	var changes []byte
	if err := row.Scan(&entry.ID, &entry.TenantID, &entry.UserID, &action, &entry.ResourceType, &entry.ResourceID, &changes, &entry.PerformedBy, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	entry.Action = Action(action)
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return Entry{}, fmt.Errorf("audit: decode changes: %w", err)
		}
	}
	return entry, nil
}

// List returns entries matching the filters, newest first, up to limit.
func (r *PGRepository) List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filters.TenantID}

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filters.ActorID != 0 {
		add("performed_by = $%d", filters.ActorID)
	}
	if filters.UserID != 0 {
		add("user_id = $%d", filters.UserID)
	}
	if filters.Action != "" {
		add("action = $%d", string(filters.Action))
	}
	if filters.ResourceType != "" {
		add("resource_type = $%d", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		add("resource_id = $%d", filters.ResourceID)
	}
	if !filters.From.IsZero() {
		add("created_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("created_at < $%d", filters.To)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM permission_audits WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetByID fetches one entry within a tenant.
func (r *PGRepository) GetByID(ctx context.Context, tenantID, id int64) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM permission_audits WHERE tenant_id = $1 AND id = $2`, entryColumns)
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// CountByAction aggregates entry counts per action within a window.
func (r *PGRepository) CountByAction(ctx context.Context, tenantID int64, from, to time.Time) ([]ActionCount, error) {
	query, args := statsWindow(`SELECT action, COUNT(*) FROM permission_audits WHERE tenant_id = $1`, tenantID, from, to)
	rows, err := r.pool.Query(ctx, query+" GROUP BY action ORDER BY COUNT(*) DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ActionCount
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts = append(counts, ActionCount{Action: Action(action), Count: count})
	}
	return counts, rows.Err()
}

// CountByResource aggregates entry counts per resource type within a window.
func (r *PGRepository) CountByResource(ctx context.Context, tenantID int64, from, to time.Time) ([]ResourceCount, error) {
	query, args := statsWindow(`SELECT resource_type, COUNT(*) FROM permission_audits WHERE tenant_id = $1`, tenantID, from, to)
	rows, err := r.pool.Query(ctx, query+" GROUP BY resource_type ORDER BY COUNT(*) DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ResourceCount
	for rows.Next() {
		var count ResourceCount
		if err := rows.Scan(&count.ResourceType, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

// Recent returns the newest n entries for a tenant.
func (r *PGRepository) Recent(ctx context.Context, tenantID int64, n int) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM permission_audits WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, entryColumns)
	rows, err := r.pool.Query(ctx, query, tenantID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ActiveTenants lists tenants with audit activity since the given time.
func (r *PGRepository) ActiveTenants(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM permission_audits WHERE created_at >= $1 ORDER BY tenant_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func statsWindow(base string, tenantID int64, from, to time.Time) (string, []any) {
	args := []any{tenantID}
	if !from.IsZero() {
		args = append(args, from)
		base += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		base += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	return base, args
}
