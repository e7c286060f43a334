package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Repository loads principals and their role permissions.
type Repository interface {
	GetPrincipal(ctx context.Context, principalID int64) (Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (Principal, error)
	RolePermissionKeys(ctx context.Context, roleID int64) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const principalColumns = `
	u.id, COALESCE(u.tenant_id, 0), u.email, u.name, COALESCE(u.role_id, 0),
	COALESCE(r.home_path, ''), u.is_super_admin, u.is_active, u.password_hash,
	COALESCE(u.contractor_id, 0), COALESCE(u.agency_id, 0),
	COALESCE(u.company_id, 0), COALESCE(u.payroll_partner_id, 0),
	u.created_at, u.updated_at`

const principalFrom = ` FROM users u LEFT JOIN roles r ON r.id = u.role_id `

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Email, &p.Name, &p.RoleID,
		&p.RoleHomePath, &p.IsSuperAdmin, &p.IsActive, &p.PasswordHash,
		&p.Anchors.ContractorID, &p.Anchors.AgencyID,
		&p.Anchors.CompanyID, &p.Anchors.PayrollPartnerID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, err
	}
	p.Anchors.UserID = p.ID
	return p, nil
}

// GetPrincipal loads one principal by id.
func (r *PGRepository) GetPrincipal(ctx context.Context, principalID int64) (Principal, error) {
	return scanPrincipal(r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+principalFrom+`WHERE u.id = $1`, principalID))
}

// GetPrincipalByEmail loads one principal by email, for login.
func (r *PGRepository) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	return scanPrincipal(r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+principalFrom+`WHERE lower(u.email) = lower($1)`, email))
}

// RolePermissionKeys returns the raw permission keys attached to a role.
func (r *PGRepository) RolePermissionKeys(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.key FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
