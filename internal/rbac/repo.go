package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Repository defines persistence operations for the role store. Mutating
// operations write the supplied audit entry inside the same transaction as
// the mutation: neither is observable without the other.
type Repository interface {
	ListRoles(ctx context.Context, tenantID int64) ([]Role, error)
	GetRole(ctx context.Context, tenantID, roleID int64) (Role, error)
	RolePermissionKeys(ctx context.Context, roleID int64) ([]string, error)
	CountPrincipals(ctx context.Context, roleID int64) (int64, error)
	InsertRole(ctx context.Context, role Role, keys []string, entry audit.Entry) (Role, error)
	UpdateRole(ctx context.Context, role Role, entry audit.Entry) (Role, error)
	ReplacePermissions(ctx context.Context, tenantID, roleID int64, keys []string, entry audit.Entry) error
	DeleteRole(ctx context.Context, tenantID, roleID int64, entry audit.Entry) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool     db.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool db.Pool, recorder *audit.Recorder) *PGRepository {
	return &PGRepository{pool: pool, recorder: recorder}
}

var _ Repository = (*PGRepository)(nil)

const roleColumns = `id, tenant_id, name, home_path, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.HomePath, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles of one tenant ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches one role within a tenant.
func (r *PGRepository) GetRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 AND id = $2`, tenantID, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// RolePermissionKeys returns the permission keys attached to a role.
func (r *PGRepository) RolePermissionKeys(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.key FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.key`, roleID)
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

// CountPrincipals returns how many active principals reference the role.
func (r *PGRepository) CountPrincipals(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// InsertRole creates the role, attaches its permissions and writes the audit
// entry in one transaction.
func (r *PGRepository) InsertRole(ctx context.Context, role Role, keys []string, entry audit.Entry) (Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO roles (tenant_id, name, home_path, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			RETURNING `+roleColumns, role.TenantID, role.Name, role.HomePath)
		var err error
		created, err = scanRole(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("rbac: role %q exists in tenant: %w", role.Name, shared.ErrConflict)
			}
			return err
		}
		if err := attachPermissions(ctx, tx, created.ID, keys); err != nil {
			return err
		}
		entry.ResourceID = strconv.FormatInt(created.ID, 10)
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole patches role metadata and writes the audit entry atomically.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role, entry audit.Entry) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE roles SET name = $3, home_path = $4, updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
			RETURNING `+roleColumns, role.TenantID, role.ID, role.Name, role.HomePath)
		var err error
		updated, err = scanRole(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			if isUniqueViolation(err) {
				return fmt.Errorf("rbac: role %q exists in tenant: %w", role.Name, shared.ErrConflict)
			}
			return err
		}
		return r.recorder.Record(ctx, tx, entry)
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// ReplacePermissions swaps the entire permission set of a role. The role row
// is locked first so two concurrent replacements serialise, and the
// delete-then-insert happens inside the transaction: no reader ever observes
// a hybrid or momentarily-empty set.
func (r *PGRepository) ReplacePermissions(ctx context.Context, tenantID, roleID int64, keys []string, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, tenantID, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if err := attachPermissions(ctx, tx, roleID, keys); err != nil {
			return err
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}

// DeleteRole removes a role and its permission rows. It fails with Conflict
// while any principal still references the role; the reference count is
// checked under the role row lock so a concurrent assignment cannot race the
// delete.
func (r *PGRepository) DeleteRole(ctx context.Context, tenantID, roleID int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, tenantID, roleID); err != nil {
			return err
		}
		var count int64
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("rbac: role %d referenced by %d principals: %w", roleID, count, shared.ErrConflict)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
			return err
		}
		return r.recorder.Record(ctx, tx, entry)
	})
}

func lockRole(ctx context.Context, tx pgx.Tx, tenantID, roleID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, roleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func attachPermissions(ctx context.Context, tx pgx.Tx, roleID int64, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE key = ANY($2)`, roleID, keys)
	if err != nil {
		return err
	}
	// The catalog validated the keys already; fewer rows than keys means the
	// permissions table has drifted from the catalog.
	if tag.RowsAffected() != int64(len(keys)) {
		return fmt.Errorf("rbac: %d of %d permission keys missing from store: %w",
			int64(len(keys))-tag.RowsAffected(), len(keys), shared.ErrInvalidPermission)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
