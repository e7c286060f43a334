package timesheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Repository defines persistence operations for timesheets. Reads take a row
// filter produced by the scope resolver; they never see unfiltered data.
type Repository interface {
	List(ctx context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Timesheet, error)
	GetByID(ctx context.Context, filter rbac.RowFilter, id int64) (Timesheet, error)
	Insert(ctx context.Context, ts Timesheet, entry audit.Entry) (Timesheet, error)
	Update(ctx context.Context, filter rbac.RowFilter, ts Timesheet, entry audit.Entry) (Timesheet, error)
	Delete(ctx context.Context, filter rbac.RowFilter, id int64, entry audit.Entry) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository builds the repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) *PGRepository {
	return &PGRepository{pool: pool, recorder: recorder}
}

var _ Repository = (*PGRepository)(nil)

const timesheetColumns = `id, tenant_id, contractor_id, period_start, period_end, hours, status, COALESCE(notes, ''), created_at, updated_at`

func scanTimesheet(row pgx.Row) (Timesheet, error) {
	var ts Timesheet
	err := row.Scan(&ts.ID, &ts.TenantID, &ts.ContractorID, &ts.PeriodStart, &ts.PeriodEnd,
		&ts.Hours, &ts.Status, &ts.Notes, &ts.CreatedAt, &ts.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Timesheet{}, shared.ErrNotFound
		}
		return Timesheet{}, err
	}
	return ts, nil
}

// List returns timesheets visible through the filter, newest period first.
func (r *PGRepository) List(ctx context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Timesheet, error) {
	var columns []string
	var values []any
	if filters.Status != "" {
		columns = append(columns, "status")
		values = append(values, string(filters.Status))
	}
	if filters.ContractorID != 0 {
		columns = append(columns, "contractor_id")
		values = append(values, filters.ContractorID)
	}
	where, args := filter.And(1, columns, values)
	next := len(args) + 1

	query := fmt.Sprintf(`SELECT `+timesheetColumns+` FROM timesheets
		WHERE %s ORDER BY period_start DESC, id DESC LIMIT $%d OFFSET $%d`, where, next, next+1)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, ts)
	}
	return sheets, rows.Err()
}

// GetByID fetches one timesheet through the filter. A row outside the
// caller's scope scans as no row at all.
func (r *PGRepository) GetByID(ctx context.Context, filter rbac.RowFilter, id int64) (Timesheet, error) {
	where, args := filter.And(1, []string{"id"}, []any{id})
	return scanTimesheet(r.pool.QueryRow(ctx,
		`SELECT `+timesheetColumns+` FROM timesheets WHERE `+where, args...))
}

// Insert creates a timesheet and its audit entry atomically.
func (r *PGRepository) Insert(ctx context.Context, ts Timesheet, entry audit.Entry) (Timesheet, error) {
	var created Timesheet
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO timesheets (tenant_id, contractor_id, period_start, period_end, hours, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW(), NOW())
			RETURNING `+timesheetColumns,
			ts.TenantID, ts.ContractorID, ts.PeriodStart, ts.PeriodEnd, ts.Hours, string(ts.Status), ts.Notes)
		var err error
		created, err = scanTimesheet(row)
		if err != nil {
			return err
		}
		entry.ResourceID = strconv.FormatInt(created.ID, 10)
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Timesheet{}, err
	}
	return created, nil
}

// Update rewrites a timesheet's mutable fields if the filter still matches it.
func (r *PGRepository) Update(ctx context.Context, filter rbac.RowFilter, ts Timesheet, entry audit.Entry) (Timesheet, error) {
	var updated Timesheet
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		where, args := filter.And(1, []string{"id"}, []any{ts.ID})
		next := len(args) + 1
		query := fmt.Sprintf(`UPDATE timesheets
			SET period_start = $%d, period_end = $%d, hours = $%d, status = $%d, notes = NULLIF($%d, ''), updated_at = NOW()
			WHERE %s RETURNING `+timesheetColumns,
			next, next+1, next+2, next+3, next+4, where)
		args = append(args, ts.PeriodStart, ts.PeriodEnd, ts.Hours, string(ts.Status), ts.Notes)

		var err error
		updated, err = scanTimesheet(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Timesheet{}, err
	}
	return updated, nil
}

// Delete removes a timesheet reachable through the filter.
func (r *PGRepository) Delete(ctx context.Context, filter rbac.RowFilter, id int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		where, args := filter.And(1, []string{"id"}, []any{id})
		tag, err := tx.Exec(ctx, `DELETE FROM timesheets WHERE `+where, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}
