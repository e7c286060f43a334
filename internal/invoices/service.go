package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Service holds invoice business logic behind the scope resolver.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateInput carries the fields of a new invoice.
type CreateInput struct {
	AgencyID    int64
	Number      string
	AmountCents int64
	Currency    string
	IssuedOn    time.Time
	DueOn       time.Time
	Notes       string
}

// UpdateInput carries the mutable fields of an invoice.
type UpdateInput struct {
	Number      string
	AmountCents int64
	Currency    string
	Status      Status
	IssuedOn    time.Time
	DueOn       time.Time
	Notes       string
}

// Result is one page of invoices.
type Result struct {
	Rows    []Invoice
	Page    int
	HasNext bool
}

var validStatus = map[Status]struct{}{
	StatusDraft: {}, StatusIssued: {}, StatusPaid: {}, StatusVoid: {},
}

// List returns the invoices the caller may see.
func (s *Service) List(ctx context.Context, access rbac.Access, tenantID int64, filters ListFilters) (Result, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesViewOwn, rbac.PermInvoicesViewAll, OwnedBy)
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

// Export returns every invoice visible to the caller, unpaged. It requires
// the export permission rather than plain view.
func (s *Service) Export(ctx context.Context, access rbac.Access, tenantID int64, filters ListFilters) ([]Invoice, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesExportAll, rbac.PermInvoicesExportAll, OwnedBy)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, filter, filters)
}

// Get returns one invoice, or ErrNotFound if it is absent or out of scope.
func (s *Service) Get(ctx context.Context, access rbac.Access, tenantID, id int64) (Invoice, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesViewOwn, rbac.PermInvoicesViewAll, OwnedBy)
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.GetByID(ctx, filter, id)
}

// Create records a new draft invoice. Own-scoped callers are pinned to their
// agency anchor regardless of the agency they name.
func (s *Service) Create(ctx context.Context, access rbac.Access, tenantID int64, input CreateInput) (Invoice, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesCreateOwn, rbac.PermInvoicesCreateAll, OwnedBy)
	if err != nil {
		return Invoice{}, err
	}
	agencyID := input.AgencyID
	if filter.HasOwner() {
		agencyID = filter.OwnerID
	}
	if agencyID == 0 {
		return Invoice{}, fmt.Errorf("invoices: agency required: %w", shared.ErrValidation)
	}
	if err := validateInvoice(input.Number, input.AmountCents, input.Currency, input.IssuedOn, input.DueOn); err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		TenantID:    filter.TenantID,
		AgencyID:    agencyID,
		Number:      strings.TrimSpace(input.Number),
		AmountCents: input.AmountCents,
		Currency:    strings.ToUpper(input.Currency),
		Status:      StatusDraft,
		IssuedOn:    input.IssuedOn,
		DueOn:       input.DueOn,
		Notes:       input.Notes,
	}
	entry := audit.Entry{
		TenantID:     filter.TenantID,
		Action:       audit.ActionCreate,
		ResourceType: "invoice",
		Changes: map[string]any{
			"agency_id":    agencyID,
			"number":       inv.Number,
			"amount_cents": inv.AmountCents,
			"currency":     inv.Currency,
		},
		PerformedBy: access.PrincipalID,
	}
	return s.repo.Insert(ctx, inv, entry)
}

// Update rewrites an invoice. Own-scoped callers may only touch drafts; an
// all-scoped caller may also move the invoice through its statuses.
func (s *Service) Update(ctx context.Context, access rbac.Access, tenantID, id int64, input UpdateInput) (Invoice, error) {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesUpdateOwn, rbac.PermInvoicesUpdateAll, OwnedBy)
	if err != nil {
		return Invoice{}, err
	}
	current, err := s.repo.GetByID(ctx, filter, id)
	if err != nil {
		return Invoice{}, err
	}
	if filter.HasOwner() && current.Status != StatusDraft {
		return Invoice{}, fmt.Errorf("invoices: %s invoice is read-only: %w", current.Status, shared.ErrConflict)
	}
	if err := validateInvoice(input.Number, input.AmountCents, input.Currency, input.IssuedOn, input.DueOn); err != nil {
		return Invoice{}, err
	}
	status := input.Status
	if status == "" {
		status = current.Status
	}
	if _, ok := validStatus[status]; !ok {
		return Invoice{}, fmt.Errorf("invoices: unknown status %q: %w", status, shared.ErrValidation)
	}
	if filter.HasOwner() && status != StatusDraft && status != StatusIssued {
		return Invoice{}, fmt.Errorf("invoices: status %s reserved: %w", status, shared.ErrForbidden)
	}

	next := current
	next.Number = strings.TrimSpace(input.Number)
	next.AmountCents = input.AmountCents
	next.Currency = strings.ToUpper(input.Currency)
	next.Status = status
	next.IssuedOn = input.IssuedOn
	next.DueOn = input.DueOn
	next.Notes = input.Notes

	changes := map[string]any{
		"amount_cents": map[string]any{"from": current.AmountCents, "to": next.AmountCents},
	}
	if next.Status != current.Status {
		changes["status"] = map[string]any{"from": string(current.Status), "to": string(next.Status)}
	}
	entry := audit.Entry{
		TenantID:     filter.TenantID,
		Action:       audit.ActionUpdate,
		ResourceType: "invoice",
		ResourceID:   strconv.FormatInt(id, 10),
		Changes:      changes,
		PerformedBy:  access.PrincipalID,
	}
	return s.repo.Update(ctx, filter, next, entry)
}

// Delete removes an invoice. Requires the all-scoped delete permission.
func (s *Service) Delete(ctx context.Context, access rbac.Access, tenantID, id int64) error {
	filter, err := rbac.BuildFilter(access, tenantID, rbac.PermInvoicesDeleteAll, rbac.PermInvoicesDeleteAll, OwnedBy)
	if err != nil {
		return err
	}
	entry := audit.Entry{
		TenantID:     filter.TenantID,
		Action:       audit.ActionDelete,
		ResourceType: "invoice",
		ResourceID:   strconv.FormatInt(id, 10),
		PerformedBy:  access.PrincipalID,
	}
	return s.repo.Delete(ctx, filter, id, entry)
}

func validateInvoice(number string, amountCents int64, currency string, issuedOn, dueOn time.Time) error {
	if strings.TrimSpace(number) == "" {
		return fmt.Errorf("invoices: number required: %w", shared.ErrValidation)
	}
	if amountCents <= 0 {
		return fmt.Errorf("invoices: amount must be positive: %w", shared.ErrValidation)
	}
	if len(currency) != 3 {
		return fmt.Errorf("invoices: currency must be ISO 4217: %w", shared.ErrValidation)
	}
	if dueOn.Before(issuedOn) {
		return fmt.Errorf("invoices: due date precedes issue date: %w", shared.ErrValidation)
	}
	return nil
}
