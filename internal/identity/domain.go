// Package identity resolves an authenticated principal into the effective
// access context: tenant, role permissions and ownership anchors. Resolution
// is cached in Redis with tenant-wide synchronous invalidation, so role
// changes take effect on the next request.
package identity

import (
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
)

// Principal is a user account able to authenticate. SuperAdmin principals
// carry no tenant and bypass permission checks entirely; everyone else belongs
// to exactly one tenant and holds exactly one role.
type Principal struct {
	ID           int64
	TenantID     int64
	Email        string
	Name         string
	RoleID       int64
	RoleHomePath string
	IsSuperAdmin bool
	IsActive     bool
	PasswordHash string
	Anchors      rbac.Anchors
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
