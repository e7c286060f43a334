package users

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
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// RepositoryPort defines data access methods for users. Mutations write their
// audit entry inside the same transaction.
type RepositoryPort interface {
	ListUsers(ctx context.Context, tenantID int64) ([]User, error)
	GetUser(ctx context.Context, tenantID, userID int64) (User, error)
	InsertUser(ctx context.Context, user User, passwordHash string, entry audit.Entry) (User, error)
	SetRole(ctx context.Context, tenantID, userID, roleID int64, entry audit.Entry) error
	ClearRole(ctx context.Context, tenantID, userID int64, entry audit.Entry) error
	SetActive(ctx context.Context, tenantID, userID int64, active bool, entry audit.Entry) error
}

// PGRepository implements RepositoryPort using PostgreSQL.
type PGRepository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository builds the repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) *PGRepository {
	return &PGRepository{pool: pool, recorder: recorder}
}

var _ RepositoryPort = (*PGRepository)(nil)

const userColumns = `
	u.id, u.tenant_id, u.email, u.name, COALESCE(u.role_id, 0), COALESCE(r.name, ''),
	u.is_active,
	COALESCE(u.contractor_id, 0), COALESCE(u.agency_id, 0),
	COALESCE(u.company_id, 0), COALESCE(u.payroll_partner_id, 0),
	u.created_at, u.updated_at`

const userFrom = ` FROM users u LEFT JOIN roles r ON r.id = u.role_id `

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Name, &u.RoleID, &u.RoleName,
		&u.IsActive,
		&u.Anchors.ContractorID, &u.Anchors.AgencyID,
		&u.Anchors.CompanyID, &u.Anchors.PayrollPartnerID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	u.Anchors.UserID = u.ID
	return u, nil
}

// ListUsers returns the tenant's principals ordered by name.
func (r *PGRepository) ListUsers(ctx context.Context, tenantID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+userFrom+`WHERE u.tenant_id = $1 ORDER BY u.name, u.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches one principal within a tenant.
func (r *PGRepository) GetUser(ctx context.Context, tenantID, userID int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+userFrom+`WHERE u.tenant_id = $1 AND u.id = $2`, tenantID, userID))
}

// InsertUser creates a principal and writes the audit entry atomically.
func (r *PGRepository) InsertUser(ctx context.Context, user User, passwordHash string, entry audit.Entry) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (
				tenant_id, email, name, password_hash, role_id, is_active,
				contractor_id, agency_id, company_id, payroll_partner_id,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, NULLIF($5, 0), TRUE,
				NULLIF($6, 0), NULLIF($7, 0), NULLIF($8, 0), NULLIF($9, 0),
				NOW(), NOW()
			) RETURNING id`,
			user.TenantID, user.Email, user.Name, passwordHash, user.RoleID,
			user.Anchors.ContractorID, user.Anchors.AgencyID,
			user.Anchors.CompanyID, user.Anchors.PayrollPartnerID,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("users: email %q taken: %w", user.Email, shared.ErrConflict)
			}
			return err
		}
		created, err = scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+userFrom+`WHERE u.id = $1`, id))
		if err != nil {
			return err
		}
		entry.ResourceID = strconv.FormatInt(id, 10)
		entry.UserID = id
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// SetRole assigns a role to a principal. The role must belong to the same
// tenant; checking it inside the transaction keeps the invariant under
// concurrent role deletes.
func (r *PGRepository) SetRole(ctx context.Context, tenantID, userID, roleID int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var ok bool
		err := tx.QueryRow(ctx,
			`SELECT TRUE FROM roles WHERE id = $1 AND tenant_id = $2 FOR SHARE`, roleID, tenantID).Scan(&ok)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("users: role %d not in tenant %d: %w", roleID, tenantID, shared.ErrNotFound)
		}
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET role_id = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
			tenantID, userID, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}

// ClearRole removes the principal's role.
func (r *PGRepository) ClearRole(ctx context.Context, tenantID, userID int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET role_id = NULL, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
			tenantID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}

// SetActive toggles a principal's active flag.
func (r *PGRepository) SetActive(ctx context.Context, tenantID, userID int64, active bool, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET is_active = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
			tenantID, userID, active)
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
