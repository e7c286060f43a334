package invoices

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Repository defines persistence operations for invoices. Every read and
// mutation goes through a scope-resolver row filter.
type Repository interface {
	List(ctx context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Invoice, error)
	ListAll(ctx context.Context, filter rbac.RowFilter, filters ListFilters) ([]Invoice, error)
	GetByID(ctx context.Context, filter rbac.RowFilter, id int64) (Invoice, error)
	Insert(ctx context.Context, inv Invoice, entry audit.Entry) (Invoice, error)
	Update(ctx context.Context, filter rbac.RowFilter, inv Invoice, entry audit.Entry) (Invoice, error)
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

const invoiceColumns = `id, tenant_id, agency_id, number, amount_cents, currency, status, issued_on, due_on, COALESCE(notes, ''), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.AgencyID, &inv.Number, &inv.AmountCents,
		&inv.Currency, &inv.Status, &inv.IssuedOn, &inv.DueOn, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func listQuery(filter rbac.RowFilter, filters ListFilters) (string, []any) {
	var columns []string
	var values []any
	if filters.Status != "" {
		columns = append(columns, "status")
		values = append(values, string(filters.Status))
	}
	if filters.AgencyID != 0 {
		columns = append(columns, "agency_id")
		values = append(values, filters.AgencyID)
	}
	where, args := filter.And(1, columns, values)
	return `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + where +
		` ORDER BY issued_on DESC, id DESC`, args
}

func (r *PGRepository) collect(ctx context.Context, query string, args []any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// List returns one page of invoices visible through the filter.
func (r *PGRepository) List(ctx context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Invoice, error) {
	query, args := listQuery(filter, filters)
	next := len(args) + 1
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, next, next+1)
	return r.collect(ctx, query, append(args, limit, offset))
}

// ListAll streams every visible invoice, unpaged, for exports.
func (r *PGRepository) ListAll(ctx context.Context, filter rbac.RowFilter, filters ListFilters) ([]Invoice, error) {
	query, args := listQuery(filter, filters)
	return r.collect(ctx, query, args)
}

// GetByID fetches one invoice through the filter. A row outside the caller's
// scope scans as no row at all.
func (r *PGRepository) GetByID(ctx context.Context, filter rbac.RowFilter, id int64) (Invoice, error) {
	where, args := filter.And(1, []string{"id"}, []any{id})
	return scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where, args...))
}

// Insert creates an invoice and its audit entry atomically.
func (r *PGRepository) Insert(ctx context.Context, inv Invoice, entry audit.Entry) (Invoice, error) {
	var created Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO invoices (tenant_id, agency_id, number, amount_cents, currency, status, issued_on, due_on, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW(), NOW())
			RETURNING `+invoiceColumns,
			inv.TenantID, inv.AgencyID, inv.Number, inv.AmountCents, inv.Currency,
			string(inv.Status), inv.IssuedOn, inv.DueOn, inv.Notes)
		var err error
		created, err = scanInvoice(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("invoices: number %q taken: %w", inv.Number, shared.ErrConflict)
			}
			return err
		}
		entry.ResourceID = strconv.FormatInt(created.ID, 10)
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// Update rewrites an invoice's mutable fields if the filter still matches it.
func (r *PGRepository) Update(ctx context.Context, filter rbac.RowFilter, inv Invoice, entry audit.Entry) (Invoice, error) {
	var updated Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		where, args := filter.And(1, []string{"id"}, []any{inv.ID})
		next := len(args) + 1
		query := fmt.Sprintf(`UPDATE invoices
			SET number = $%d, amount_cents = $%d, currency = $%d, status = $%d, issued_on = $%d, due_on = $%d, notes = NULLIF($%d, ''), updated_at = NOW()
			WHERE %s RETURNING `+invoiceColumns,
			next, next+1, next+2, next+3, next+4, next+5, next+6, where)
		args = append(args, inv.Number, inv.AmountCents, inv.Currency, string(inv.Status),
			inv.IssuedOn, inv.DueOn, inv.Notes)

		var err error
		updated, err = scanInvoice(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("invoices: number %q taken: %w", inv.Number, shared.ErrConflict)
			}
			return err
		}
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// Delete removes an invoice reachable through the filter.
func (r *PGRepository) Delete(ctx context.Context, filter rbac.RowFilter, id int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		where, args := filter.And(1, []string{"id"}, []any{id})
		tag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE `+where, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
