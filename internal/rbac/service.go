package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Invalidator drops cached access snapshots for a tenant. Role mutations call
// it so the change is visible on the very next request, not after a cache TTL.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64) error
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, int64) error { return nil }

// Service implements role management on top of the repository. Every mutation
// produces an audit entry committed atomically with the change.
type Service struct {
	repo        Repository
	catalog     *Catalog
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs the role management service. A nil invalidator is
// replaced by a no-op, which is only acceptable in tests.
func NewService(repo Repository, catalog *Catalog, invalidator Invalidator, logger *slog.Logger) *Service {
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	return &Service{repo: repo, catalog: catalog, invalidator: invalidator, logger: logger}
}

// RolePatch carries optional role metadata updates. Nil fields are untouched.
type RolePatch struct {
	Name     *string
	HomePath *string
}

var nameFolder = cases.Fold()

func foldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

// checkNameFree rejects a name another role of the tenant already holds under
// case folding. A unique index on (tenant_id, lower(name)) backstops the race
// between this check and the insert.
func (s *Service) checkNameFree(ctx context.Context, tenantID int64, name string, selfID int64) error {
	roles, err := s.repo.ListRoles(ctx, tenantID)
	if err != nil {
		return err
	}
	folded := foldName(name)
	for _, role := range roles {
		if role.ID != selfID && foldName(role.Name) == folded {
			return fmt.Errorf("rbac: role %q exists in tenant: %w", name, shared.ErrConflict)
		}
	}
	return nil
}

// resolveTenant applies the tenant targeting rule shared with BuildFilter:
// tenant users always act on their own tenant, super-admins must name one.
func resolveTenant(access Access, requested int64) (int64, error) {
	if access.IsSuperAdmin {
		if requested == 0 {
			return 0, fmt.Errorf("rbac: super-admin must target a tenant: %w", shared.ErrValidation)
		}
		return requested, nil
	}
	if requested != 0 && requested != access.TenantID {
		return 0, shared.ErrForbidden
	}
	return access.TenantID, nil
}

// validateKeys checks that every key parses and exists in the catalog. It
// returns the deduplicated keys in sorted order.
func (s *Service) validateKeys(keys []string) ([]string, error) {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, raw := range keys {
		key, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}
		if !s.catalog.Exists(key) {
			return nil, fmt.Errorf("rbac: key %q not in catalog: %w", raw, shared.ErrInvalidPermission)
		}
		canonical := key.String()
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out, nil
}

// ListRoles returns the roles of the targeted tenant.
func (s *Service) ListRoles(ctx context.Context, access Access, tenantID int64) ([]Role, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx, tenant)
}

// GetRole returns one role with its permission keys.
func (s *Service) GetRole(ctx context.Context, access Access, tenantID, roleID int64) (RoleWithPermissions, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	role, err := s.repo.GetRole(ctx, tenant, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	keys, err := s.repo.RolePermissionKeys(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: role, Permissions: keys}, nil
}

// CreateRole creates a role with an initial permission set.
func (s *Service) CreateRole(ctx context.Context, access Access, tenantID int64, name, homePath string, keys []string) (RoleWithPermissions, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleWithPermissions{}, fmt.Errorf("rbac: role name required: %w", shared.ErrValidation)
	}
	canonical, err := s.validateKeys(keys)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	if err := s.checkNameFree(ctx, tenant, name, 0); err != nil {
		return RoleWithPermissions{}, err
	}

	entry := audit.Entry{
		TenantID:     tenant,
		Action:       audit.ActionGrant,
		ResourceType: "role",
		Changes: map[string]any{
			"name":    name,
			"granted": canonical,
		},
		PerformedBy: access.PrincipalID,
	}
	role := Role{TenantID: tenant, Name: name, HomePath: homePath}
	created, err := s.repo.InsertRole(ctx, role, canonical, entry)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	s.logger.Info("role created", "tenant_id", tenant, "role_id", created.ID, "name", created.Name)
	return RoleWithPermissions{Role: created, Permissions: canonical}, nil
}

// UpdateRole patches role metadata.
func (s *Service) UpdateRole(ctx context.Context, access Access, tenantID, roleID int64, patch RolePatch) (Role, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return Role{}, err
	}
	current, err := s.repo.GetRole(ctx, tenant, roleID)
	if err != nil {
		return Role{}, err
	}

	changes := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrValidation)
		}
		if name != current.Name {
			if err := s.checkNameFree(ctx, tenant, name, roleID); err != nil {
				return Role{}, err
			}
			changes["name"] = map[string]any{"from": current.Name, "to": name}
			current.Name = name
		}
	}
	if patch.HomePath != nil && *patch.HomePath != current.HomePath {
		changes["home_path"] = map[string]any{"from": current.HomePath, "to": *patch.HomePath}
		current.HomePath = *patch.HomePath
	}
	if len(changes) == 0 {
		return current, nil
	}

	entry := audit.Entry{
		TenantID:     tenant,
		Action:       audit.ActionUpdate,
		ResourceType: "role",
		ResourceID:   strconv.FormatInt(roleID, 10),
		Changes:      changes,
		PerformedBy:  access.PrincipalID,
	}
	return s.repo.UpdateRole(ctx, current, entry)
}

// AssignPermissions replaces the role's entire permission set. The audit entry
// records the computed delta: GRANT when keys were added, REVOKE when the
// change only removed keys.
func (s *Service) AssignPermissions(ctx context.Context, access Access, tenantID, roleID int64, keys []string) (RoleWithPermissions, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	role, err := s.repo.GetRole(ctx, tenant, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	canonical, err := s.validateKeys(keys)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	before, err := s.repo.RolePermissionKeys(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}

	added, removed := diffKeys(before, canonical)
	if len(added) == 0 && len(removed) == 0 {
		return RoleWithPermissions{Role: role, Permissions: before}, nil
	}

	action := audit.ActionGrant
	if len(added) == 0 {
		action = audit.ActionRevoke
	}
	entry := audit.Entry{
		TenantID:     tenant,
		Action:       action,
		ResourceType: "role",
		ResourceID:   strconv.FormatInt(roleID, 10),
		Changes: map[string]any{
			"granted": added,
			"revoked": removed,
		},
		PerformedBy: access.PrincipalID,
	}
	if err := s.repo.ReplacePermissions(ctx, tenant, roleID, canonical, entry); err != nil {
		return RoleWithPermissions{}, err
	}
	if err := s.invalidator.Invalidate(ctx, tenant); err != nil {
		s.logger.Error("access cache invalidation failed", "tenant_id", tenant, "error", err)
	}
	s.logger.Info("role permissions replaced",
		"tenant_id", tenant, "role_id", roleID, "granted", len(added), "revoked", len(removed))
	return RoleWithPermissions{Role: role, Permissions: canonical}, nil
}

// DeleteRole removes an unreferenced role.
func (s *Service) DeleteRole(ctx context.Context, access Access, tenantID, roleID int64) error {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, tenant, roleID)
	if err != nil {
		return err
	}
	entry := audit.Entry{
		TenantID:     tenant,
		Action:       audit.ActionRoleRemoved,
		ResourceType: "role",
		ResourceID:   strconv.FormatInt(roleID, 10),
		Changes:      map[string]any{"name": role.Name},
		PerformedBy:  access.PrincipalID,
	}
	if err := s.repo.DeleteRole(ctx, tenant, roleID, entry); err != nil {
		return err
	}
	if err := s.invalidator.Invalidate(ctx, tenant); err != nil {
		s.logger.Error("access cache invalidation failed", "tenant_id", tenant, "error", err)
	}
	s.logger.Info("role deleted", "tenant_id", tenant, "role_id", roleID, "name", role.Name)
	return nil
}

// Permissions returns the full catalog for UI consumption.
func (s *Service) Permissions() []Grant {
	return s.catalog.All()
}

func diffKeys(before, after []string) (added, removed []string) {
	added = []string{}
	removed = []string{}
	prev := make(map[string]struct{}, len(before))
	for _, k := range before {
		prev[k] = struct{}{}
	}
	next := make(map[string]struct{}, len(after))
	for _, k := range after {
		next[k] = struct{}{}
	}
	for _, k := range after {
		if _, ok := prev[k]; !ok {
			added = append(added, k)
		}
	}
	for _, k := range before {
		if _, ok := next[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
