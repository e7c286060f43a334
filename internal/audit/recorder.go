package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/db"
)

// Recorder writes entries into permission_audits. It accepts any db.DBTX so
// callers bind the audit write into the transaction of the mutation it
// describes: if the audit insert fails, the whole transaction aborts.
type Recorder struct{}

// NewRecorder returns a new Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record persists the entry. Action, resource type and resource id are
// required; a missing field is a caller bug, not a droppable event.
func (rec *Recorder) Record(ctx context.Context, dbtx db.DBTX, entry Entry) error {
	if rec == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.Action == "" || entry.ResourceType == "" || entry.ResourceID == "" {
		return errors.New("audit entry requires action/resource_type/resource_id")
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = dbtx.Exec(ctx, `
		INSERT INTO permission_audits (tenant_id, user_id, action, resource_type, resource_id, changes, performed_by, created_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8)`,
		entry.TenantID, entry.UserID, string(entry.Action), entry.ResourceType, entry.ResourceID, changes, entry.PerformedBy, at)
	return err
}
