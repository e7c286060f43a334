package invoices

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

type memoryInvoiceRepo struct {
	invoices map[int64]Invoice
	entries  []audit.Entry
	nextID   int64
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]Invoice)}
}

func (r *memoryInvoiceRepo) matches(filter rbac.RowFilter, inv Invoice) bool {
	if inv.TenantID != filter.TenantID {
		return false
	}
	if filter.HasOwner() && inv.AgencyID != filter.OwnerID {
		return false
	}
	return true
}

func (r *memoryInvoiceRepo) visible(filter rbac.RowFilter, filters ListFilters) []Invoice {
	var out []Invoice
	for _, inv := range r.invoices {
		if !r.matches(filter, inv) {
			continue
		}
		if filters.Status != "" && inv.Status != filters.Status {
			continue
		}
		if filters.AgencyID != 0 && inv.AgencyID != filters.AgencyID {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func (r *memoryInvoiceRepo) List(_ context.Context, filter rbac.RowFilter, filters ListFilters, limit, offset int) ([]Invoice, error) {
	out := r.visible(filter, filters)
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *memoryInvoiceRepo) ListAll(_ context.Context, filter rbac.RowFilter, filters ListFilters) ([]Invoice, error) {
	return r.visible(filter, filters), nil
}

func (r *memoryInvoiceRepo) GetByID(_ context.Context, filter rbac.RowFilter, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || !r.matches(filter, inv) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (r *memoryInvoiceRepo) Insert(_ context.Context, inv Invoice, entry audit.Entry) (Invoice, error) {
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = inv
	r.entries = append(r.entries, entry)
	return inv, nil
}

func (r *memoryInvoiceRepo) Update(_ context.Context, filter rbac.RowFilter, inv Invoice, entry audit.Entry) (Invoice, error) {
	current, ok := r.invoices[inv.ID]
	if !ok || !r.matches(filter, current) {
		return Invoice{}, shared.ErrNotFound
	}
	r.invoices[inv.ID] = inv
	r.entries = append(r.entries, entry)
	return inv, nil
}

func (r *memoryInvoiceRepo) Delete(_ context.Context, filter rbac.RowFilter, id int64, entry audit.Entry) error {
	current, ok := r.invoices[id]
	if !ok || !r.matches(filter, current) {
		return shared.ErrNotFound
	}
	delete(r.invoices, id)
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

func agencyUser(tenantID, agencyID int64) rbac.Access {
	return rbac.Access{
		PrincipalID: 30,
		TenantID:    tenantID,
		Keys: keySet(rbac.PermInvoicesViewOwn, rbac.PermInvoicesCreateOwn,
			rbac.PermInvoicesUpdateOwn),
		Anchors: rbac.Anchors{AgencyID: agencyID},
	}
}

func billing(tenantID int64) rbac.Access {
	return rbac.Access{
		PrincipalID: 40,
		TenantID:    tenantID,
		Keys: keySet(rbac.PermInvoicesViewAll, rbac.PermInvoicesCreateAll,
			rbac.PermInvoicesUpdateAll, rbac.PermInvoicesDeleteAll, rbac.PermInvoicesExportAll),
	}
}

func newTestService(t *testing.T) (*Service, *memoryInvoiceRepo) {
	t.Helper()
	repo := newMemoryInvoiceRepo()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func createInvoice(t *testing.T, svc *Service, access rbac.Access, agencyID int64, number string) Invoice {
	t.Helper()
	issued := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	inv, err := svc.Create(context.Background(), access, 0, CreateInput{
		AgencyID:    agencyID,
		Number:      number,
		AmountCents: 125000,
		Currency:    "eur",
		IssuedOn:    issued,
		DueOn:       issued.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	return inv
}

func TestCreatePinsAgencyAnchor(t *testing.T) {
	svc, repo := newTestService(t)

	inv := createInvoice(t, svc, agencyUser(5, 12), 999, "INV-001")
	require.Equal(t, int64(12), inv.AgencyID)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, "EUR", inv.Currency, "currency is normalised")

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionCreate, entry.Action)
	require.Equal(t, "invoice", entry.ResourceType)
}

func TestCreateBillingNamesAgency(t *testing.T) {
	svc, _ := newTestService(t)

	inv := createInvoice(t, svc, billing(5), 77, "INV-002")
	require.Equal(t, int64(77), inv.AgencyID)

	issued := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), billing(5), 0, CreateInput{
		Number: "INV-003", AmountCents: 100, Currency: "EUR",
		IssuedOn: issued, DueOn: issued,
	})
	require.ErrorIs(t, err, shared.ErrValidation, "all-scope caller must name an agency")
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	issued := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []CreateInput{
		{AgencyID: 1, Number: " ", AmountCents: 100, Currency: "EUR", IssuedOn: issued, DueOn: issued},
		{AgencyID: 1, Number: "INV", AmountCents: 0, Currency: "EUR", IssuedOn: issued, DueOn: issued},
		{AgencyID: 1, Number: "INV", AmountCents: 100, Currency: "EURO", IssuedOn: issued, DueOn: issued},
		{AgencyID: 1, Number: "INV", AmountCents: 100, Currency: "EUR", IssuedOn: issued, DueOn: issued.AddDate(0, 0, -1)},
	}
	for _, input := range cases {
		_, err := svc.Create(context.Background(), billing(5), 0, input)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestListScopesToAgency(t *testing.T) {
	svc, _ := newTestService(t)
	createInvoice(t, svc, agencyUser(5, 12), 0, "INV-001")
	createInvoice(t, svc, billing(5), 77, "INV-002")
	createInvoice(t, svc, billing(6), 12, "INV-003")

	mine, err := svc.List(context.Background(), agencyUser(5, 12), 0, ListFilters{})
	require.NoError(t, err)
	require.Len(t, mine.Rows, 1)
	require.Equal(t, int64(12), mine.Rows[0].AgencyID)

	all, err := svc.List(context.Background(), billing(5), 0, ListFilters{})
	require.NoError(t, err)
	require.Len(t, all.Rows, 2, "rows from tenant 6 never surface, same agency or not")
}

func TestGetOutsideScopeIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	other := createInvoice(t, svc, billing(5), 77, "INV-010")

	_, err := svc.Get(context.Background(), agencyUser(5, 12), 0, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), agencyUser(5, 12), 0, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOwnerCannotEditIssued(t *testing.T) {
	svc, _ := newTestService(t)
	own := agencyUser(5, 12)
	inv := createInvoice(t, svc, own, 0, "INV-020")

	update := UpdateInput{
		Number: inv.Number, AmountCents: 150000, Currency: "EUR",
		Status: StatusIssued, IssuedOn: inv.IssuedOn, DueOn: inv.DueOn,
	}
	issued, err := svc.Update(context.Background(), own, 0, inv.ID, update)
	require.NoError(t, err, "owner may issue a draft")
	require.Equal(t, StatusIssued, issued.Status)

	_, err = svc.Update(context.Background(), own, 0, inv.ID, update)
	require.ErrorIs(t, err, shared.ErrConflict, "issued invoices are read-only for the owner")

	update.Status = StatusPaid
	_, err = svc.Update(context.Background(), billing(5), 0, inv.ID, update)
	require.NoError(t, err, "billing staff may settle it")
}

func TestOwnerCannotMarkPaid(t *testing.T) {
	svc, _ := newTestService(t)
	own := agencyUser(5, 12)
	inv := createInvoice(t, svc, own, 0, "INV-021")

	_, err := svc.Update(context.Background(), own, 0, inv.ID, UpdateInput{
		Number: inv.Number, AmountCents: inv.AmountCents, Currency: "EUR",
		Status: StatusPaid, IssuedOn: inv.IssuedOn, DueOn: inv.DueOn,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdateRecordsStatusChange(t *testing.T) {
	svc, repo := newTestService(t)
	inv := createInvoice(t, svc, billing(5), 77, "INV-030")

	_, err := svc.Update(context.Background(), billing(5), 0, inv.ID, UpdateInput{
		Number: inv.Number, AmountCents: inv.AmountCents, Currency: "EUR",
		Status: StatusVoid, IssuedOn: inv.IssuedOn, DueOn: inv.DueOn,
	})
	require.NoError(t, err)

	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionUpdate, entry.Action)
	require.Contains(t, entry.Changes, "status")
}

func TestDeleteRequiresAllScope(t *testing.T) {
	svc, repo := newTestService(t)
	own := agencyUser(5, 12)
	inv := createInvoice(t, svc, own, 0, "INV-040")

	err := svc.Delete(context.Background(), own, 0, inv.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), billing(5), 0, inv.ID))
	entry := repo.entries[len(repo.entries)-1]
	require.Equal(t, audit.ActionDelete, entry.Action)
}

func TestExportRequiresExportPermission(t *testing.T) {
	svc, _ := newTestService(t)
	createInvoice(t, svc, billing(5), 77, "INV-050")
	createInvoice(t, svc, billing(5), 78, "INV-051")

	_, err := svc.Export(context.Background(), agencyUser(5, 12), 0, ListFilters{})
	require.ErrorIs(t, err, shared.ErrForbidden, "view.own does not grant export")

	rows, err := svc.Export(context.Background(), billing(5), 0, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
