package timesheets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Service implements timesheet business rules on top of scope-filtered reads.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateInput carries the fields for a new timesheet.
type CreateInput struct {
	ContractorID int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Hours        float64
	Notes        string
}

// UpdateInput carries the mutable fields of a timesheet.
type UpdateInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Hours       float64
	Notes       string
}

// Result is one page of timesheets.
type Result struct {
	Rows    []Timesheet
	Page    int
	HasNext bool
}

// List returns the timesheets the caller may see.
func (s *Service) List(ctx context.Context, access rbac.Access, tenantID int64, filters ListFilters) (Result, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermTimesheetsViewOwn, rbac.PermTimesheetsViewAll, OwnedBy)
	if err != nil {
		return Result{}, err
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	rows, err := s.repo.List(ctx, filter, filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Rows: rows, Page: page, HasNext: hasNext}, nil
}

// Get fetches one timesheet. A row outside the caller's scope is reported as
// not found, indistinguishable from a row that does not exist.
func (s *Service) Get(ctx context.Context, access rbac.Access, tenantID, id int64) (Timesheet, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermTimesheetsViewOwn, rbac.PermTimesheetsViewAll, OwnedBy)
	if err != nil {
		return Timesheet{}, err
	}
	return s.repo.GetByID(ctx, filter, id)
}

// Create opens a draft timesheet. Contractors write for their own anchor only;
// the input contractor is ignored for them. Super-admins must name one.
func (s *Service) Create(ctx context.Context, access rbac.Access, tenantID int64, input CreateInput) (Timesheet, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermTimesheetsCreateOwn, rbac.PermTimesheetsUpdateAll, OwnedBy)
	if err != nil {
		return Timesheet{}, err
	}
	contractorID := input.ContractorID
	if filter.HasOwner() {
		contractorID = filter.OwnerID
	}
	if contractorID == 0 {
		return Timesheet{}, fmt.Errorf("timesheets: contractor required: %w", shared.ErrValidation)
	}
	if err := validatePeriod(input.PeriodStart, input.PeriodEnd, input.Hours); err != nil {
		return Timesheet{}, err
	}

	ts := Timesheet{
		TenantID:     filter.TenantID,
		ContractorID: contractorID,
		PeriodStart:  input.PeriodStart,
		PeriodEnd:    input.PeriodEnd,
		Hours:        input.Hours,
		Status:       StatusDraft,
		Notes:        input.Notes,
	}
	entry := audit.Entry{
		TenantID:     filter.TenantID,
		Action:       audit.ActionCreate,
		ResourceType: "timesheet",
		Changes: map[string]any{
			"contractor_id": contractorID,
			"period_start":  input.PeriodStart.Format("2006-01-02"),
			"period_end":    input.PeriodEnd.Format("2006-01-02"),
			"hours":         input.Hours,
		},
		PerformedBy: access.PrincipalID,
	}
	created, err := s.repo.Insert(ctx, ts, entry)
	if err != nil {
		return Timesheet{}, err
	}
	s.logger.Info("timesheet created", "tenant_id", created.TenantID, "timesheet_id", created.ID)
	return created, nil
}

// Update rewrites a draft or rejected timesheet. Holders of update.all may
// edit any status.
func (s *Service) Update(ctx context.Context, access rbac.Access, tenantID, id int64, input UpdateInput) (Timesheet, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermTimesheetsUpdateOwn, rbac.PermTimesheetsUpdateAll, OwnedBy)
	if err != nil {
		return Timesheet{}, err
	}
	current, err := s.repo.GetByID(ctx, filter, id)
	if err != nil {
		return Timesheet{}, err
	}
	if filter.HasOwner() && current.Status != StatusDraft && current.Status != StatusRejected {
		return Timesheet{}, fmt.Errorf("timesheets: %s timesheet is read-only: %w", current.Status, shared.ErrConflict)
	}
	if err := validatePeriod(input.PeriodStart, input.PeriodEnd, input.Hours); err != nil {
		return Timesheet{}, err
	}

	next := current
	next.PeriodStart = input.PeriodStart
	next.PeriodEnd = input.PeriodEnd
	next.Hours = input.Hours
	next.Notes = input.Notes
	if current.Status == StatusRejected {
		next.Status = StatusDraft
	}

	entry := s.entryFor(access, filter.TenantID, id, audit.ActionUpdate, map[string]any{
		"hours": map[string]any{"from": current.Hours, "to": next.Hours},
	})
	return s.repo.Update(ctx, filter, next, entry)
}

// Submit moves a draft to submitted.
func (s *Service) Submit(ctx context.Context, access rbac.Access, tenantID, id int64) (Timesheet, error) {
	return s.transition(ctx, access, tenantID, id,
		rbac.PermTimesheetsUpdateOwn, rbac.PermTimesheetsUpdateAll,
		[]Status{StatusDraft}, StatusSubmitted)
}

// Approve moves a submitted timesheet to approved. Only approve.all holders
// reach this; there is no self-approval scope.
func (s *Service) Approve(ctx context.Context, access rbac.Access, tenantID, id int64) (Timesheet, error) {
	return s.transition(ctx, access, tenantID, id,
		rbac.PermTimesheetsApproveAll, rbac.PermTimesheetsApproveAll,
		[]Status{StatusSubmitted}, StatusApproved)
}

// Reject moves a submitted timesheet back to rejected.
func (s *Service) Reject(ctx context.Context, access rbac.Access, tenantID, id int64) (Timesheet, error) {
	return s.transition(ctx, access, tenantID, id,
		rbac.PermTimesheetsApproveAll, rbac.PermTimesheetsApproveAll,
		[]Status{StatusSubmitted}, StatusRejected)
}

// Delete removes a timesheet. Requires delete.all; there is no own-scoped
// delete in the catalog.
func (s *Service) Delete(ctx context.Context, access rbac.Access, tenantID, id int64) error {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermTimesheetsDeleteAll, rbac.PermTimesheetsDeleteAll, OwnedBy)
	if err != nil {
		return err
	}
	entry := s.entryFor(access, filter.TenantID, id, audit.ActionDelete, nil)
	if err := s.repo.Delete(ctx, filter, id, entry); err != nil {
		return err
	}
	s.logger.Info("timesheet deleted", "tenant_id", filter.TenantID, "timesheet_id", id)
	return nil
}

func (s *Service) transition(ctx context.Context, access rbac.Access, tenantID, id int64, ownKey, allKey rbac.Key, from []Status, to Status) (Timesheet, error) {
	filter, err := rbac.BuildFilter(access, tenantID, ownKey, allKey, OwnedBy)
	if err != nil {
		return Timesheet{}, err
	}
	current, err := s.repo.GetByID(ctx, filter, id)
	if err != nil {
		return Timesheet{}, err
	}
	allowed := false
	for _, status := range from {
		if current.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Timesheet{}, fmt.Errorf("timesheets: cannot move %s to %s: %w", current.Status, to, shared.ErrConflict)
	}

	next := current
	next.Status = to
	entry := s.entryFor(access, filter.TenantID, id, audit.ActionUpdate, map[string]any{
		"status": map[string]any{"from": string(current.Status), "to": string(to)},
	})
	return s.repo.Update(ctx, filter, next, entry)
}

func (s *Service) entryFor(access rbac.Access, tenantID, id int64, action audit.Action, changes map[string]any) audit.Entry {
	return audit.Entry{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: "timesheet",
		ResourceID:   strconv.FormatInt(id, 10),
		Changes:      changes,
		PerformedBy:  access.PrincipalID,
	}
}

func validatePeriod(start, end time.Time, hours float64) error {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return fmt.Errorf("timesheets: invalid period: %w", shared.ErrValidation)
	}
	if hours <= 0 || hours > 24*7*4 {
		return fmt.Errorf("timesheets: invalid hours: %w", shared.ErrValidation)
	}
	return nil
}
