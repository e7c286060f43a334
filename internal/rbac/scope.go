package rbac

import (
	"fmt"
	"strings"

	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// AccessLevel is the effective row visibility computed from an own/all
// permission pair.
type AccessLevel int

const (
	// LevelNone grants no rows; resolution fails before any query is issued.
	LevelNone AccessLevel = iota
	// LevelOwn grants rows anchored to the caller.
	LevelOwn
	// LevelAll grants every row in the tenant.
	LevelAll
)

// String returns a readable level name.
func (l AccessLevel) String() string {
	switch l {
	case LevelOwn:
		return "own"
	case LevelAll:
		return "all"
	default:
		return "none"
	}
}

// Ownership declares how an entity type anchors rows to a principal. Each
// entity package declares its own at definition time, next to its schema,
// instead of a central name-keyed table that can drift.
type Ownership struct {
	Anchor AnchorKind
	Column string
}

// RowFilter is the concrete data filter derived from an access level. Every
// filter carries a tenant id; there is no level that omits it.
type RowFilter struct {
	TenantID    int64
	OwnerColumn string
	OwnerID     int64
}

// HasOwner reports whether the filter restricts rows to an owner.
func (f RowFilter) HasOwner() bool {
	return f.OwnerColumn != ""
}

// Where renders the filter as a SQL predicate with placeholders starting at
// startArg, returning the clause and its arguments.
func (f RowFilter) Where(startArg int) (string, []any) {
	clause := fmt.Sprintf("tenant_id = $%d", startArg)
	args := []any{f.TenantID}
	if f.HasOwner() {
		clause += fmt.Sprintf(" AND %s = $%d", f.OwnerColumn, startArg+1)
		args = append(args, f.OwnerID)
	}
	return clause, args
}

// And appends extra equality predicates, continuing placeholder numbering.
func (f RowFilter) And(startArg int, columns []string, values []any) (string, []any) {
	clause, args := f.Where(startArg)
	next := startArg + len(args)
	var sb strings.Builder
	sb.WriteString(clause)
	for i, col := range columns {
		fmt.Fprintf(&sb, " AND %s = $%d", col, next+i)
	}
	return sb.String(), append(args, values...)
}

// ResolveLevel computes the effective access level for an own/all permission
// pair. Super-admins and holders of allKey get ALL; holders of only ownKey
// get OWN; anything else is NONE.
func ResolveLevel(access Access, ownKey, allKey Key) AccessLevel {
	if access.IsSuperAdmin || access.Has(allKey) {
		return LevelAll
	}
	if access.Has(ownKey) {
		return LevelOwn
	}
	return LevelNone
}

// BuildFilter translates a permission pair into the row filter for one tenant.
//
// tenantID names the tenant being operated on; zero means "the caller's own
// tenant". Tenant users may only target their own tenant. Super-admins may
// target any tenant but must name one: tenant isolation holds even for
// super-admin reads.
//
// Under OWN, a caller without the entity's ownership anchor is rejected with
// ErrForbidden rather than given an unfiltered or empty query. NONE rejects
// before any query is issued.
func BuildFilter(access Access, tenantID int64, ownKey, allKey Key, own Ownership) (RowFilter, error) {
	if tenantID == 0 {
		tenantID = access.TenantID
	}
	if tenantID == 0 {
		return RowFilter{}, fmt.Errorf("rbac: no target tenant: %w", shared.ErrForbidden)
	}
	if !access.IsSuperAdmin && tenantID != access.TenantID {
		return RowFilter{}, fmt.Errorf("rbac: cross-tenant access: %w", shared.ErrForbidden)
	}

	switch ResolveLevel(access, ownKey, allKey) {
	case LevelAll:
		return RowFilter{TenantID: tenantID}, nil
	case LevelOwn:
		ownerID, ok := access.AnchorFor(own.Anchor)
		if !ok {
			return RowFilter{}, fmt.Errorf("rbac: missing %s anchor: %w", own.Anchor, shared.ErrForbidden)
		}
		return RowFilter{TenantID: tenantID, OwnerColumn: own.Column, OwnerID: ownerID}, nil
	default:
		return RowFilter{}, fmt.Errorf("rbac: %s not held: %w", ownKey, shared.ErrForbidden)
	}
}
