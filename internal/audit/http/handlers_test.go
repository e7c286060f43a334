package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/StreallyX/payroll-saas-sub000/internal/audit"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

type stubRepo struct {
	entries []audit.Entry
}

func (r *stubRepo) List(_ context.Context, filters audit.Filters, limit, offset int) ([]audit.Entry, error) {
	var matched []audit.Entry
	for _, e := range r.entries {
		if e.TenantID != filters.TenantID {
			continue
		}
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		if filters.ResourceType != "" && e.ResourceType != filters.ResourceType {
			continue
		}
		matched = append(matched, e)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *stubRepo) GetByID(_ context.Context, tenantID, id int64) (audit.Entry, error) {
	for _, e := range r.entries {
		if e.ID == id && e.TenantID == tenantID {
			return e, nil
		}
	}
	return audit.Entry{}, shared.ErrNotFound
}

func (r *stubRepo) CountByAction(_ context.Context, tenantID int64, _, _ time.Time) ([]audit.ActionCount, error) {
	return []audit.ActionCount{{Action: audit.ActionGrant, Count: 2}}, nil
}

func (r *stubRepo) CountByResource(_ context.Context, tenantID int64, _, _ time.Time) ([]audit.ResourceCount, error) {
	return []audit.ResourceCount{{ResourceType: "role", Count: 2}}, nil
}

func (r *stubRepo) Recent(_ context.Context, tenantID int64, n int) ([]audit.Entry, error) {
	if n > len(r.entries) {
		n = len(r.entries)
	}
	return r.entries[:n], nil
}

func (r *stubRepo) ActiveTenants(_ context.Context, _ time.Time) ([]int64, error) {
	seen := map[int64]struct{}{}
	var tenants []int64
	for _, entry := range r.entries {
		if _, ok := seen[entry.TenantID]; !ok {
			seen[entry.TenantID] = struct{}{}
			tenants = append(tenants, entry.TenantID)
		}
	}
	return tenants, nil
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	repo := &stubRepo{entries: []audit.Entry{
		{ID: 1, TenantID: 5, Action: audit.ActionGrant, ResourceType: "role", ResourceID: "3", PerformedBy: 100, CreatedAt: time.Now()},
		{ID: 2, TenantID: 5, Action: audit.ActionRoleAssigned, ResourceType: "user", ResourceID: "7", UserID: 7, PerformedBy: 100, CreatedAt: time.Now()},
		{ID: 3, TenantID: 6, Action: audit.ActionGrant, ResourceType: "role", ResourceID: "9", PerformedBy: 200, CreatedAt: time.Now()},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, audit.NewService(repo), rbac.Middleware{Catalog: rbac.NewCatalog(), Logger: logger})

	router := chi.NewRouter()
	router.Route("/audit", handler.MountRoutes)
	return router
}

func requestAs(access rbac.Access, method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(rbac.ContextWithAccess(req.Context(), access))
}

func auditor(tenantID int64) rbac.Access {
	return rbac.Access{
		PrincipalID: 100,
		TenantID:    tenantID,
		Keys:        map[rbac.Key]struct{}{rbac.PermAuditViewAll: {}},
	}
}

func TestListRequiresPermission(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	nobody := rbac.Access{PrincipalID: 1, TenantID: 5}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(nobody, http.MethodGet, "/audit"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListScopedToCallerTenant(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []struct {
			ID       int64 `json:"id"`
			TenantID int64 `json:"tenant_id"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	for _, e := range body.Entries {
		require.Equal(t, int64(5), e.TenantID)
	}
}

func TestListForeignTenantForbidden(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit?tenant_id=6"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListSuperAdminMustTargetTenant(t *testing.T) {
	router := newTestRouter(t)
	admin := rbac.Access{PrincipalID: 1, IsSuperAdmin: true}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodGet, "/audit"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodGet, "/audit?tenant_id=6"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetByIDCrossTenantIsNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit/1"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Entry 3 belongs to tenant 6; its existence is not revealed.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit/3"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestByActorAndByRole(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit/users/100"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit/roles/3"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []struct {
			ResourceType string `json:"resource_type"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, e := range body.Entries {
		require.Equal(t, "role", e.ResourceType)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(auditor(5), http.MethodGet, "/audit/stats"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ByAction   map[string]int64 `json:"by_action"`
		ByResource map[string]int64 `json:"by_resource"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.ByAction["GRANT"])
	require.Equal(t, int64(2), body.ByResource["role"])
}
