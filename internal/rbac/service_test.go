package rbac

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

type memoryRoleRepo struct {
	roles      map[int64]Role
	rolePerms  map[int64][]string
	principals map[int64]int64
	entries    []audit.Entry
	nextID     int64
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:      make(map[int64]Role),
		rolePerms:  make(map[int64][]string),
		principals: make(map[int64]int64),
	}
}

func (r *memoryRoleRepo) ListRoles(_ context.Context, tenantID int64) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if role.TenantID == tenantID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) GetRole(_ context.Context, tenantID, roleID int64) (Role, error) {
	role, ok := r.roles[roleID]
	if !ok || role.TenantID != tenantID {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) RolePermissionKeys(_ context.Context, roleID int64) ([]string, error) {
	return append([]string(nil), r.rolePerms[roleID]...), nil
}

func (r *memoryRoleRepo) CountPrincipals(_ context.Context, roleID int64) (int64, error) {
	return r.principals[roleID], nil
}

func (r *memoryRoleRepo) InsertRole(_ context.Context, role Role, keys []string, entry audit.Entry) (Role, error) {
	r.nextID++
	role.ID = r.nextID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	r.roles[role.ID] = role
	r.rolePerms[role.ID] = append([]string(nil), keys...)
	r.entries = append(r.entries, entry)
	return role, nil
}

func (r *memoryRoleRepo) UpdateRole(_ context.Context, role Role, entry audit.Entry) (Role, error) {
	stored, ok := r.roles[role.ID]
	if !ok || stored.TenantID != role.TenantID {
		return Role{}, shared.ErrNotFound
	}
	role.UpdatedAt = time.Now()
	r.roles[role.ID] = role
	r.entries = append(r.entries, entry)
	return role, nil
}

func (r *memoryRoleRepo) ReplacePermissions(_ context.Context, tenantID, roleID int64, keys []string, entry audit.Entry) error {
	role, ok := r.roles[roleID]
	if !ok || role.TenantID != tenantID {
		return shared.ErrNotFound
	}
	r.rolePerms[roleID] = append([]string(nil), keys...)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRoleRepo) DeleteRole(_ context.Context, tenantID, roleID int64, entry audit.Entry) error {
	role, ok := r.roles[roleID]
	if !ok || role.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if r.principals[roleID] > 0 {
		return shared.ErrConflict
	}
	delete(r.roles, roleID)
	delete(r.rolePerms, roleID)
	r.entries = append(r.entries, entry)
	return nil
}

type recordingInvalidator struct {
	tenants []int64
}

func (i *recordingInvalidator) Invalidate(_ context.Context, tenantID int64) error {
	i.tenants = append(i.tenants, tenantID)
	return nil
}

func newTestRoleService(t *testing.T) (*Service, *memoryRoleRepo, *recordingInvalidator) {
	t.Helper()
	repo := newMemoryRoleRepo()
	inv := &recordingInvalidator{}
	svc := NewService(repo, NewCatalog(), inv, slog.New(slog.DiscardHandler))
	return svc, repo, inv
}

func tenantAdmin(tenantID int64) Access {
	return Access{PrincipalID: 100, TenantID: tenantID, Keys: keySet(PermRolesManageAll, PermRolesViewAll)}
}

func TestCreateRole(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Finance Manager", "/invoices", []string{
		"invoices.view.all", "invoices.update.all",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), role.TenantID)
	require.Equal(t, "Finance Manager", role.Name)
	require.Equal(t, []string{"invoices.update.all", "invoices.view.all"}, role.Permissions)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, audit.ActionGrant, entry.Action)
	require.Equal(t, "role", entry.ResourceType)
	require.Equal(t, int64(100), entry.PerformedBy)
	require.Equal(t, int64(5), entry.TenantID)
}

func TestCreateRoleRejectsUnknownKey(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)

	_, err := svc.CreateRole(context.Background(), tenantAdmin(5), 0, "Broken", "", []string{"invoices.launch.all"})
	require.ErrorIs(t, err, shared.ErrInvalidPermission)

	_, err = svc.CreateRole(context.Background(), tenantAdmin(5), 0, "Broken", "", []string{"audit.delete.all"})
	require.ErrorIs(t, err, shared.ErrInvalidPermission)

	_, err = svc.CreateRole(context.Background(), tenantAdmin(5), 0, "Broken", "", []string{"not-a-key"})
	require.ErrorIs(t, err, shared.ErrMalformedKey)

	require.Empty(t, repo.entries, "rejected creates must not audit")
}

func TestCreateRoleDuplicateNameFolded(t *testing.T) {
	svc, _, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	_, err := svc.CreateRole(context.Background(), access, 0, "Approver", "", nil)
	require.NoError(t, err)

	_, err = svc.CreateRole(context.Background(), access, 0, "  APPROVER ", "", nil)
	require.ErrorIs(t, err, shared.ErrConflict)

	// Same name in another tenant is fine.
	_, err = svc.CreateRole(context.Background(), tenantAdmin(6), 0, "Approver", "", nil)
	require.NoError(t, err)
}

func TestCreateRoleTenantTargeting(t *testing.T) {
	svc, _, _ := newTestRoleService(t)

	// Tenant admin naming a foreign tenant is rejected.
	_, err := svc.CreateRole(context.Background(), tenantAdmin(5), 6, "Spy", "", nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Super-admin must name a tenant.
	admin := Access{PrincipalID: 1, IsSuperAdmin: true}
	_, err = svc.CreateRole(context.Background(), admin, 0, "Floating", "", nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	role, err := svc.CreateRole(context.Background(), admin, 8, "Tenant Admin", "/", []string{"roles.manage.all"})
	require.NoError(t, err)
	require.Equal(t, int64(8), role.TenantID)
}

func TestAssignPermissionsComputesDelta(t *testing.T) {
	svc, repo, inv := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Reviewer", "", []string{
		"timesheets.view.all", "timesheets.approve.all",
	})
	require.NoError(t, err)

	updated, err := svc.AssignPermissions(context.Background(), access, 0, role.ID, []string{
		"timesheets.view.all", "expenses.approve.all",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"expenses.approve.all", "timesheets.view.all"}, updated.Permissions)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionGrant, entry.Action)
	require.Equal(t, []string{"expenses.approve.all"}, entry.Changes["granted"])
	require.Equal(t, []string{"timesheets.approve.all"}, entry.Changes["revoked"])
	require.Equal(t, []int64{5}, inv.tenants)
}

func TestAssignPermissionsPureRemovalIsRevoke(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Reviewer", "", []string{
		"timesheets.view.all", "timesheets.approve.all",
	})
	require.NoError(t, err)

	_, err = svc.AssignPermissions(context.Background(), access, 0, role.ID, []string{"timesheets.view.all"})
	require.NoError(t, err)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionRevoke, entry.Action)
}

func TestAssignPermissionsNoChangeNoAudit(t *testing.T) {
	svc, repo, inv := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Reviewer", "", []string{"timesheets.view.all"})
	require.NoError(t, err)
	audited := len(repo.entries)

	got, err := svc.AssignPermissions(context.Background(), access, 0, role.ID, []string{"timesheets.view.all"})
	require.NoError(t, err)
	require.Equal(t, []string{"timesheets.view.all"}, got.Permissions)
	require.Len(t, repo.entries, audited)
	require.Empty(t, inv.tenants)
}

func TestAssignPermissionsRejectsUnknownKeyAtomically(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Reviewer", "", []string{"timesheets.view.all"})
	require.NoError(t, err)

	_, err = svc.AssignPermissions(context.Background(), access, 0, role.ID, []string{
		"timesheets.approve.all", "rockets.view.all",
	})
	require.ErrorIs(t, err, shared.ErrInvalidPermission)

	// The old set survives untouched.
	keys, err := repo.RolePermissionKeys(context.Background(), role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"timesheets.view.all"}, keys)
}

func TestUpdateRoleMetadata(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Ops", "/tasks", nil)
	require.NoError(t, err)

	name := "Operations"
	updated, err := svc.UpdateRole(context.Background(), access, 0, role.ID, RolePatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Operations", updated.Name)
	require.Equal(t, "/tasks", updated.HomePath)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionUpdate, entry.Action)
	require.Contains(t, entry.Changes, "name")
}

func TestUpdateRoleNoChange(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Ops", "/tasks", nil)
	require.NoError(t, err)
	audited := len(repo.entries)

	same := "Ops"
	_, err = svc.UpdateRole(context.Background(), access, 0, role.ID, RolePatch{Name: &same})
	require.NoError(t, err)
	require.Len(t, repo.entries, audited)
}

func TestDeleteRole(t *testing.T) {
	svc, repo, inv := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Temp", "", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(context.Background(), access, 0, role.ID))

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionRoleRemoved, entry.Action)
	require.Equal(t, []int64{5}, inv.tenants)

	_, err = svc.GetRole(context.Background(), access, 0, role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleReferencedConflicts(t *testing.T) {
	svc, repo, _ := newTestRoleService(t)
	access := tenantAdmin(5)

	role, err := svc.CreateRole(context.Background(), access, 0, "Held", "", nil)
	require.NoError(t, err)
	repo.principals[role.ID] = 3

	err = svc.DeleteRole(context.Background(), access, 0, role.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.GetRole(context.Background(), access, 0, role.ID)
	require.NoError(t, err)
}
