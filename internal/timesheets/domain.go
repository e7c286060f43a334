// Package timesheets manages contractor time reporting. Rows are anchored to
// a contractor; visibility follows the caller's timesheet permissions.
package timesheets

import (
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
)

// OwnedBy declares how timesheet rows anchor to a principal.
var OwnedBy = rbac.Ownership{Anchor: rbac.AnchorContractor, Column: "contractor_id"}

// Status tracks a timesheet through its lifecycle.
type Status string

// Timesheet statuses.
const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Timesheet is one contractor's reported hours for a period.
type Timesheet struct {
	ID           int64
	TenantID     int64
	ContractorID int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Hours        float64
	Status       Status
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilters narrows timesheet queries.
type ListFilters struct {
	Status       Status
	ContractorID int64
	Page         int
	PageSize     int
}
