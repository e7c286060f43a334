package rbac

import "time"

// Role is a tenant-scoped bundle of permission keys. (tenant_id, name) is
// unique per tenant after case folding.
type Role struct {
	ID        int64
	TenantID  int64
	Name      string
	HomePath  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is a persisted catalog entry. Rows are seeded from the catalog at
// bootstrap and never mutated; deletion is disallowed once referenced by a role.
type Permission struct {
	ID          int64
	Key         string
	Description string
}

// RoleWithPermissions pairs a role with its materialised permission keys.
type RoleWithPermissions struct {
	Role
	Permissions []string
}
