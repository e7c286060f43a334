// Package users administers tenant principals: creation, role assignment and
// deactivation. Every mutation lands in the audit trail atomically.
package users

import (
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
)

// User is the administrative view of a principal.
type User struct {
	ID        int64
	TenantID  int64
	Email     string
	Name      string
	RoleID    int64
	RoleName  string
	IsActive  bool
	Anchors   rbac.Anchors
	CreatedAt time.Time
	UpdatedAt time.Time
}
