package identity

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

func serveHydrated(t *testing.T, resolver *Resolver, sess *shared.Session) (rbac.Access, bool) {
	t.Helper()
	var access rbac.Access
	var ok bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		access, ok = rbac.AccessFromContext(r.Context())
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	Hydrate(resolver, logger)(next).ServeHTTP(httptest.NewRecorder(), req)
	return access, ok
}

func TestHydrateResolvesSessionUser(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	sess := &shared.Session{}
	sess.SetUser("1")

	access, ok := serveHydrated(t, resolver, sess)
	require.True(t, ok)
	require.Equal(t, int64(1), access.PrincipalID)
	require.Equal(t, int64(5), access.TenantID)
}

func TestHydrateAnonymousPassesThrough(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	_, ok := serveHydrated(t, resolver, nil)
	require.False(t, ok)

	_, ok = serveHydrated(t, resolver, &shared.Session{})
	require.False(t, ok)
}

func TestHydrateStaleSessionPassesThrough(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	// Deactivated principal: the request proceeds without access and the
	// gate rejects it downstream.
	sess := &shared.Session{}
	sess.SetUser("3")
	_, ok := serveHydrated(t, resolver, sess)
	require.False(t, ok)

	sess = &shared.Session{}
	sess.SetUser("99")
	_, ok = serveHydrated(t, resolver, sess)
	require.False(t, ok)
}
