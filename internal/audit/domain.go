// Package audit maintains the append-only trail of permission-relevant events
// and gated entity mutations. Entries are written in the same transaction as
// the mutation they describe and are never updated or deleted.
package audit

import "time"

// Action classifies an audit entry.
type Action string

// Permission-relevant actions.
const (
	ActionGrant        Action = "GRANT"
	ActionRevoke       Action = "REVOKE"
	ActionRoleAssigned Action = "ROLE_ASSIGNED"
	ActionRoleRemoved  Action = "ROLE_REMOVED"
)

// Entity mutation actions recorded for operations performed through the gate.
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Entry is one immutable audit record. UserID is the principal the event is
// about (zero when the target is not a principal); PerformedBy is the actor.
type Entry struct {
	ID           int64
	TenantID     int64
	UserID       int64
	Action       Action
	ResourceType string
	ResourceID   string
	Changes      map[string]any
	PerformedBy  int64
	CreatedAt    time.Time
}

// Filters narrows audit queries.
type Filters struct {
	TenantID     int64
	ActorID      int64
	UserID       int64
	Action       Action
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// ActionCount is one aggregate bucket of the stats surface.
type ActionCount struct {
	Action Action
	Count  int64
}

// ResourceCount aggregates entries per resource type.
type ResourceCount struct {
	ResourceType string
	Count        int64
}

// Stats summarises a tenant's audit activity.
type Stats struct {
	ByAction   []ActionCount
	ByResource []ResourceCount
	Recent     []Entry
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps a page of entries with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
