package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/StreallyX/payroll-saas-sub000/internal/identity"
	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

type stubIdentityRepo struct {
	byEmail map[string]identity.Principal
}

func (r *stubIdentityRepo) GetPrincipal(_ context.Context, id int64) (identity.Principal, error) {
	for _, p := range r.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return identity.Principal{}, shared.ErrNotFound
}

func (r *stubIdentityRepo) GetPrincipalByEmail(_ context.Context, email string) (identity.Principal, error) {
	p, ok := r.byEmail[email]
	if !ok {
		return identity.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *stubIdentityRepo) RolePermissionKeys(_ context.Context, _ int64) ([]string, error) {
	return nil, nil
}

type memorySessionStore struct {
	created map[string]int64
	deleted []string
}

func (s *memorySessionStore) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	if s.created == nil {
		s.created = make(map[string]int64)
	}
	s.created[id] = userID
	return nil
}

func (s *memorySessionStore) DeleteSession(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memorySessionStore) DeleteExpiredSessions(_ context.Context) (int64, error) {
	return 0, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestHandler(t *testing.T) (*Handler, *shared.SessionManager, *memorySessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	store := &memorySessionStore{}
	repo := &stubIdentityRepo{byEmail: map[string]identity.Principal{
		"pm@tenant.test": {
			ID: 1, TenantID: 5, Email: "pm@tenant.test", Name: "Project Manager",
			RoleID: 3, RoleHomePath: "/timesheets", IsActive: true,
			PasswordHash: hash(t, "correct-horse-battery"),
		},
		"gone@tenant.test": {
			ID: 2, TenantID: 5, Email: "gone@tenant.test", IsActive: false,
			PasswordHash: hash(t, "correct-horse-battery"),
		},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, NewService(repo, store), sessions, validator.New())
	return handler, sessions, store
}

func withSession(t *testing.T, sessions *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func postLogin(t *testing.T, handler *Handler, sessions *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessions, req)

	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec, sess
}

func TestLoginSuccess(t *testing.T) {
	handler, sessions, store := newTestHandler(t)

	rec, sess := postLogin(t, handler, sessions,
		`{"email":"pm@tenant.test","password":"correct-horse-battery"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID   int64  `json:"user_id"`
		TenantID int64  `json:"tenant_id"`
		HomePath string `json:"home_path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(1), body.UserID)
	require.Equal(t, int64(5), body.TenantID)
	require.Equal(t, "/timesheets", body.HomePath)

	require.Equal(t, "1", sess.User())
	require.Equal(t, int64(1), store.created[sess.ID])
}

func TestLoginWrongPassword(t *testing.T) {
	handler, sessions, store := newTestHandler(t)

	rec, sess := postLogin(t, handler, sessions,
		`{"email":"pm@tenant.test","password":"wrong-password-here"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, sess.User())
	require.Empty(t, store.created)
}

func TestLoginUnknownAndInactiveLookAlike(t *testing.T) {
	handler, sessions, _ := newTestHandler(t)

	unknown, _ := postLogin(t, handler, sessions,
		`{"email":"nobody@tenant.test","password":"correct-horse-battery"}`)
	inactive, _ := postLogin(t, handler, sessions,
		`{"email":"gone@tenant.test","password":"correct-horse-battery"}`)

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, inactive.Code)
}

func TestLoginValidation(t *testing.T) {
	handler, sessions, _ := newTestHandler(t)

	rec, _ := postLogin(t, handler, sessions, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = postLogin(t, handler, sessions, `{broken json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	handler, sessions, store := newTestHandler(t)

	_, sess := postLogin(t, handler, sessions,
		`{"email":"pm@tenant.test","password":"correct-horse-battery"}`)
	require.NotEmpty(t, sess.User())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, store.deleted, sess.ID)
}

func TestMe(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	access := rbac.Access{
		PrincipalID: 1,
		TenantID:    5,
		Keys:        map[rbac.Key]struct{}{rbac.PermTimesheetsViewOwn: {}},
	}
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(rbac.ContextWithAccess(req.Context(), access))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID      int64    `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(1), body.UserID)
	require.Equal(t, []string{"timesheets.view.own"}, body.Permissions)
}
