package rbac

import "context"

// AnchorKind names an ownership anchor carried on a principal.
type AnchorKind string

// Ownership anchors recognised by the scope resolver.
const (
	AnchorContractor     AnchorKind = "contractor"
	AnchorAgency         AnchorKind = "agency"
	AnchorCompany        AnchorKind = "company"
	AnchorPayrollPartner AnchorKind = "payroll_partner"
	AnchorUser           AnchorKind = "user"
)

// Anchors holds the principal's ownership anchors. A zero value means the
// anchor is not set.
type Anchors struct {
	UserID           int64 `json:"user_id,omitempty"`
	ContractorID     int64 `json:"contractor_id,omitempty"`
	AgencyID         int64 `json:"agency_id,omitempty"`
	CompanyID        int64 `json:"company_id,omitempty"`
	PayrollPartnerID int64 `json:"payroll_partner_id,omitempty"`
}

// Access is the effective authorization context of one request: tenant,
// super-admin flag, the flattened permission set and the ownership anchors.
// It is hydrated once per request by the identity resolver; gate and scope
// evaluation over it performs no I/O.
type Access struct {
	PrincipalID  int64
	TenantID     int64
	IsSuperAdmin bool
	Keys         map[Key]struct{}
	Anchors      Anchors
}

// Has reports whether the access holds the permission. Super-admins hold
// every permission implicitly.
func (a Access) Has(key Key) bool {
	if a.IsSuperAdmin {
		return true
	}
	_, ok := a.Keys[key]
	return ok
}

// HasAny reports whether at least one of the keys is held.
func (a Access) HasAny(keys ...Key) bool {
	if a.IsSuperAdmin {
		return true
	}
	for _, key := range keys {
		if _, ok := a.Keys[key]; ok {
			return true
		}
	}
	return false
}

// HasAll reports whether every key is held.
func (a Access) HasAll(keys ...Key) bool {
	if a.IsSuperAdmin {
		return true
	}
	for _, key := range keys {
		if _, ok := a.Keys[key]; !ok {
			return false
		}
	}
	return true
}

// AnchorFor returns the anchor value for kind, and whether it is set.
func (a Access) AnchorFor(kind AnchorKind) (int64, bool) {
	var id int64
	switch kind {
	case AnchorUser:
		id = a.Anchors.UserID
	case AnchorContractor:
		id = a.Anchors.ContractorID
	case AnchorAgency:
		id = a.Anchors.AgencyID
	case AnchorCompany:
		id = a.Anchors.CompanyID
	case AnchorPayrollPartner:
		id = a.Anchors.PayrollPartnerID
	}
	return id, id != 0
}

type accessContextKey struct{}

// ContextWithAccess stores the effective access in context.
func ContextWithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext extracts the effective access from context.
func AccessFromContext(ctx context.Context) (Access, bool) {
	access, ok := ctx.Value(accessContextKey{}).(Access)
	return access, ok
}
