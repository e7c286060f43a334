package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Evictor drops one principal's cached access snapshot.
type Evictor interface {
	Evict(ctx context.Context, principalID int64) error
}

type noopEvictor struct{}

func (noopEvictor) Evict(context.Context, int64) error { return nil }

// Service handles principal administration.
type Service struct {
	repo    RepositoryPort
	evictor Evictor
	logger  *slog.Logger
}

// NewService builds Service instance. A nil evictor is replaced by a no-op.
func NewService(repo RepositoryPort, evictor Evictor, logger *slog.Logger) *Service {
	if evictor == nil {
		evictor = noopEvictor{}
	}
	return &Service{repo: repo, evictor: evictor, logger: logger}
}

// CreateUserInput carries the fields needed to create a principal.
type CreateUserInput struct {
	TenantID int64
	Email    string
	Name     string
	Password string
	RoleID   int64
	Anchors  rbac.Anchors
}

func resolveTenant(access rbac.Access, requested int64) (int64, error) {
	if access.IsSuperAdmin {
		if requested == 0 {
			return 0, fmt.Errorf("users: super-admin must target a tenant: %w", shared.ErrValidation)
		}
		return requested, nil
	}
	if requested != 0 && requested != access.TenantID {
		return 0, shared.ErrForbidden
	}
	return access.TenantID, nil
}

// ListUsers returns the targeted tenant's principals.
func (s *Service) ListUsers(ctx context.Context, access rbac.Access, tenantID int64) ([]User, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, tenant)
}

// GetUser returns one principal.
func (s *Service) GetUser(ctx context.Context, access rbac.Access, tenantID, userID int64) (User, error) {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, tenant, userID)
}

// CreateUser creates an active principal with a hashed password.
func (s *Service) CreateUser(ctx context.Context, access rbac.Access, input CreateUserInput) (User, error) {
	tenant, err := resolveTenant(access, input.TenantID)
	if err != nil {
		return User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return User{}, fmt.Errorf("users: email required: %w", shared.ErrValidation)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("users: password too short: %w", shared.ErrValidation)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	entry := audit.Entry{
		TenantID:     tenant,
		Action:       audit.ActionCreate,
		ResourceType: "user",
		Changes: map[string]any{
			"email":   email,
			"name":    input.Name,
			"role_id": input.RoleID,
		},
		PerformedBy: access.PrincipalID,
	}
	user := User{
		TenantID: tenant,
		Email:    email,
		Name:     strings.TrimSpace(input.Name),
		RoleID:   input.RoleID,
		Anchors:  input.Anchors,
	}
	created, err := s.repo.InsertUser(ctx, user, string(hashed), entry)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", "tenant_id", tenant, "user_id", created.ID)
	return created, nil
}

// AssignRole gives the principal a role of the same tenant. The previous role
// is recorded in the entry so the trail answers "who held what, when".
func (s *Service) AssignRole(ctx context.Context, access rbac.Access, tenantID, userID, roleID int64) error {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return err
	}
	if roleID == 0 {
		return fmt.Errorf("users: role id required: %w", shared.ErrValidation)
	}
	current, err := s.repo.GetUser(ctx, tenant, userID)
	if err != nil {
		return err
	}
	if current.RoleID == roleID {
		return nil
	}

	entry := audit.Entry{
		TenantID:     tenant,
		UserID:       userID,
		Action:       audit.ActionRoleAssigned,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(userID, 10),
		Changes: map[string]any{
			"role_id": map[string]any{"from": current.RoleID, "to": roleID},
		},
		PerformedBy: access.PrincipalID,
	}
	if err := s.repo.SetRole(ctx, tenant, userID, roleID, entry); err != nil {
		return err
	}
	s.evictPrincipal(ctx, userID)
	s.logger.Info("role assigned", "tenant_id", tenant, "user_id", userID, "role_id", roleID)
	return nil
}

// RemoveRole strips the principal's role, leaving them authenticated but
// without any permissions.
func (s *Service) RemoveRole(ctx context.Context, access rbac.Access, tenantID, userID int64) error {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return err
	}
	current, err := s.repo.GetUser(ctx, tenant, userID)
	if err != nil {
		return err
	}
	if current.RoleID == 0 {
		return nil
	}

	entry := audit.Entry{
		TenantID:     tenant,
		UserID:       userID,
		Action:       audit.ActionRoleRemoved,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(userID, 10),
		Changes: map[string]any{
			"role_id": map[string]any{"from": current.RoleID, "to": int64(0)},
		},
		PerformedBy: access.PrincipalID,
	}
	if err := s.repo.ClearRole(ctx, tenant, userID, entry); err != nil {
		return err
	}
	s.evictPrincipal(ctx, userID)
	s.logger.Info("role removed", "tenant_id", tenant, "user_id", userID)
	return nil
}

// SetActive toggles a principal. Deactivation evicts the cached access so the
// very next request is rejected, not the first one after the TTL.
func (s *Service) SetActive(ctx context.Context, access rbac.Access, tenantID, userID int64, active bool) error {
	tenant, err := resolveTenant(access, tenantID)
	if err != nil {
		return err
	}
	if access.PrincipalID == userID && !active {
		return fmt.Errorf("users: cannot deactivate yourself: %w", shared.ErrValidation)
	}
	current, err := s.repo.GetUser(ctx, tenant, userID)
	if err != nil {
		return err
	}
	if current.IsActive == active {
		return nil
	}

	entry := audit.Entry{
		TenantID:     tenant,
		UserID:       userID,
		Action:       audit.ActionUpdate,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(userID, 10),
		Changes: map[string]any{
			"is_active": map[string]any{"from": current.IsActive, "to": active},
		},
		PerformedBy: access.PrincipalID,
	}
	if err := s.repo.SetActive(ctx, tenant, userID, active, entry); err != nil {
		return err
	}
	if !active {
		s.evictPrincipal(ctx, userID)
	}
	s.logger.Info("user active flag changed", "tenant_id", tenant, "user_id", userID, "active", active)
	return nil
}

func (s *Service) evictPrincipal(ctx context.Context, userID int64) {
	if err := s.evictor.Evict(ctx, userID); err != nil {
		s.logger.Error("access cache evict failed", "user_id", userID, "error", err)
	}
}
