package invoices

import (
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
)

// OwnedBy declares how invoice rows are anchored: an agency user with an
// own-scoped permission only ever sees rows carrying its agency_id.
var OwnedBy = rbac.Ownership{Anchor: rbac.AnchorAgency, Column: "agency_id"}

// Status is the lifecycle state of an invoice.
type Status string

// Invoice statuses.
const (
	StatusDraft  Status = "draft"
	StatusIssued Status = "issued"
	StatusPaid   Status = "paid"
	StatusVoid   Status = "void"
)

// Invoice is a billing document raised by an agency against a tenant.
// Amounts are stored in minor units to keep arithmetic exact.
type Invoice struct {
	ID          int64
	TenantID    int64
	AgencyID    int64
	Number      string
	AmountCents int64
	Currency    string
	Status      Status
	IssuedOn    time.Time
	DueOn       time.Time
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilters narrows invoice listings.
type ListFilters struct {
	Status   Status
	AgencyID int64
	Page     int
	PageSize int
}
