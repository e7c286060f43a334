package timesheets

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

type memoryTimesheetRepo struct {
	sheets  map[int64]Timesheet
	entries []audit.Entry
	nextID  int64
}

func newMemoryTimesheetRepo() *memoryTimesheetRepo {
	return &memoryTimesheetRepo{sheets: make(map[int64]Timesheet)}
}

func (r *memoryTimesheetRepo) matches(filter rbac.RowFilter, ts Timesheet) bool {
	if ts.TenantID != filter.TenantID {
		return false
	}
	if filter.HasOwner() && ts.ContractorID != filter.OwnerID {
		return false
	}
	return true
}

func (r *memoryTimesheetRepo) List(_ context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Timesheet, error) {
	var out []Timesheet
	for _, ts := range r.sheets {
		if !r.matches(filter, ts) {
			continue
		}
		if filters.Status != "" && ts.Status != filters.Status {
			continue
		}
		if filters.ContractorID != 0 && ts.ContractorID != filters.ContractorID {
			continue
		}
		out = append(out, ts)
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *memoryTimesheetRepo) GetByID(_ context.Context, filter rbac.RowFilter, id int64) (Timesheet, error) {
	ts, ok := r.sheets[id]
	if !ok || !r.matches(filter, ts) {
		return Timesheet{}, shared.ErrNotFound
	}
	return ts, nil
}

func (r *memoryTimesheetRepo) Insert(_ context.Context, ts Timesheet, entry audit.Entry) (Timesheet, error) {
	r.nextID++
	ts.ID = r.nextID
	r.sheets[ts.ID] = ts
	r.entries = append(r.entries, entry)
	return ts, nil
}

func (r *memoryTimesheetRepo) Update(_ context.Context, filter rbac.RowFilter, ts Timesheet, entry audit.Entry) (Timesheet, error) {
	current, ok := r.sheets[ts.ID]
	if !ok || !r.matches(filter, current) {
		return Timesheet{}, shared.ErrNotFound
	}
	r.sheets[ts.ID] = ts
	r.entries = append(r.entries, entry)
	return ts, nil
}

func (r *memoryTimesheetRepo) Delete(_ context.Context, filter rbac.RowFilter, id int64, entry audit.Entry) error {
	current, ok := r.sheets[id]
	if !ok || !r.matches(filter, current) {
		return shared.ErrNotFound
	}
	delete(r.sheets, id)
	r.entries = append(r.entries, entry)
	return nil
}

func keySet(keys ...rbac.Key) map[rbac.Key]struct{} {
	set := make(map[rbac.Key]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

func contractor(tenantID, contractorID int64) rbac.Access {
	return rbac.Access{
		PrincipalID: 10,
		TenantID:    tenantID,
		Keys: keySet(rbac.PermTimesheetsViewOwn, rbac.PermTimesheetsCreateOwn,
			rbac.PermTimesheetsUpdateOwn),
		Anchors: rbac.Anchors{ContractorID: contractorID},
	}
}

func manager(tenantID int64) rbac.Access {
	return rbac.Access{
		PrincipalID: 20,
		TenantID:    tenantID,
		Keys: keySet(rbac.PermTimesheetsViewAll, rbac.PermTimesheetsUpdateAll,
			rbac.PermTimesheetsApproveAll, rbac.PermTimesheetsDeleteAll),
	}
}

func newTestService(t *testing.T) (*Service, *memoryTimesheetRepo) {
	t.Helper()
	repo := newMemoryTimesheetRepo()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func week(day int) (time.Time, time.Time) {
	start := time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 6)
}

func createDraft(t *testing.T, svc *Service, access rbac.Access, contractorID int64) Timesheet {
	t.Helper()
	start, end := week(3)
	ts, err := svc.Create(context.Background(), access, 0, CreateInput{
		ContractorID: contractorID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Hours:        38,
	})
	require.NoError(t, err)
	return ts
}

func TestCreateForcesOwnAnchor(t *testing.T) {
	svc, repo := newTestService(t)

	// The contractor names someone else's anchor; it is overridden.
	ts := createDraft(t, svc, contractor(5, 42), 999)
	require.Equal(t, int64(42), ts.ContractorID)
	require.Equal(t, StatusDraft, ts.Status)
	require.Equal(t, int64(5), ts.TenantID)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionCreate, entry.Action)
	require.Equal(t, "timesheet", entry.ResourceType)
}

func TestCreateWithoutAnchorFails(t *testing.T) {
	svc, _ := newTestService(t)
	access := contractor(5, 0) // permission held, anchor missing

	start, end := week(3)
	_, err := svc.Create(context.Background(), access, 0, CreateInput{
		PeriodStart: start, PeriodEnd: end, Hours: 38,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateManagerNamesContractor(t *testing.T) {
	svc, _ := newTestService(t)

	ts := createDraft(t, svc, manager(5), 77)
	require.Equal(t, int64(77), ts.ContractorID)

	start, end := week(10)
	_, err := svc.Create(context.Background(), manager(5), 0, CreateInput{
		PeriodStart: start, PeriodEnd: end, Hours: 38,
	})
	require.ErrorIs(t, err, shared.ErrValidation, "manager must name a contractor")
}

func TestListScopesToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	createDraft(t, svc, contractor(5, 42), 0)
	createDraft(t, svc, manager(5), 77)
	createDraft(t, svc, manager(6), 88)

	mine, err := svc.List(context.Background(), contractor(5, 42), 0, ListFilters{})
	require.NoError(t, err)
	require.Len(t, mine.Rows, 1)
	require.Equal(t, int64(42), mine.Rows[0].ContractorID)

	all, err := svc.List(context.Background(), manager(5), 0, ListFilters{})
	require.NoError(t, err)
	require.Len(t, all.Rows, 2, "tenant 6 rows stay invisible")
}

func TestGetOutsideScopeIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	other := createDraft(t, svc, manager(5), 77)

	_, err := svc.Get(context.Background(), contractor(5, 42), 0, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), contractor(5, 42), 0, 9999)
	require.ErrorIs(t, err, shared.ErrNotFound, "missing and out-of-scope are indistinguishable")
}

func TestListWithoutPermissionForbidden(t *testing.T) {
	svc, _ := newTestService(t)
	nobody := rbac.Access{PrincipalID: 1, TenantID: 5, Keys: keySet(rbac.PermInvoicesViewAll)}

	_, err := svc.List(context.Background(), nobody, 0, ListFilters{})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSubmitAndApproveFlow(t *testing.T) {
	svc, repo := newTestService(t)
	own := contractor(5, 42)
	ts := createDraft(t, svc, own, 0)

	submitted, err := svc.Submit(context.Background(), own, 0, ts.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)

	// Contractor cannot approve their own timesheet.
	_, err = svc.Approve(context.Background(), own, 0, ts.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	approved, err := svc.Approve(context.Background(), manager(5), 0, ts.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionUpdate, entry.Action)
	require.Contains(t, entry.Changes, "status")

	// Approving twice conflicts.
	_, err = svc.Approve(context.Background(), manager(5), 0, ts.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRejectReturnsToEditable(t *testing.T) {
	svc, _ := newTestService(t)
	own := contractor(5, 42)
	ts := createDraft(t, svc, own, 0)

	_, err := svc.Submit(context.Background(), own, 0, ts.ID)
	require.NoError(t, err)
	rejected, err := svc.Reject(context.Background(), manager(5), 0, ts.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	// The contractor may rework a rejected sheet; it returns to draft.
	start, end := week(3)
	updated, err := svc.Update(context.Background(), own, 0, ts.ID, UpdateInput{
		PeriodStart: start, PeriodEnd: end, Hours: 40,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, updated.Status)
	require.Equal(t, 40.0, updated.Hours)
}

func TestOwnerCannotEditSubmitted(t *testing.T) {
	svc, _ := newTestService(t)
	own := contractor(5, 42)
	ts := createDraft(t, svc, own, 0)
	_, err := svc.Submit(context.Background(), own, 0, ts.ID)
	require.NoError(t, err)

	start, end := week(3)
	_, err = svc.Update(context.Background(), own, 0, ts.ID, UpdateInput{
		PeriodStart: start, PeriodEnd: end, Hours: 12,
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	// A manager with update.all may still correct it.
	_, err = svc.Update(context.Background(), manager(5), 0, ts.ID, UpdateInput{
		PeriodStart: start, PeriodEnd: end, Hours: 12,
	})
	require.NoError(t, err)
}

func TestDeleteRequiresAllScope(t *testing.T) {
	svc, _ := newTestService(t)
	own := contractor(5, 42)
	ts := createDraft(t, svc, own, 0)

	err := svc.Delete(context.Background(), own, 0, ts.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), manager(5), 0, ts.ID))
	_, err = svc.Get(context.Background(), manager(5), 0, ts.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSuperAdminMustTargetTenant(t *testing.T) {
	svc, _ := newTestService(t)
	createDraft(t, svc, manager(5), 77)
	admin := rbac.Access{PrincipalID: 1, IsSuperAdmin: true}

	_, err := svc.List(context.Background(), admin, 0, ListFilters{})
	require.ErrorIs(t, err, shared.ErrForbidden)

	result, err := svc.List(context.Background(), admin, 5, ListFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}
