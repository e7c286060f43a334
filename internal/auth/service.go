// Package auth implements session-based authentication: credential checks,
// session registration and teardown.
package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/StreallyX/payroll-saas-sub000/internal/identity"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// SessionStore persists login sessions for auditing and forced logout.
type SessionStore interface {
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Service wraps authentication business rules.
type Service struct {
	identities identity.Repository
	sessions   SessionStore
}

// NewService constructs a new Service.
func NewService(identities identity.Repository, sessions SessionStore) *Service {
	return &Service{identities: identities, sessions: sessions}
}

// Authenticate validates email/password credentials. Unknown email, inactive
// account and wrong password all collapse into ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (identity.Principal, error) {
	principal, err := s.identities.GetPrincipalByEmail(ctx, email)
	if err != nil {
		return identity.Principal{}, shared.ErrInvalidCredentials
	}
	if !principal.IsActive {
		return identity.Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		return identity.Principal{}, shared.ErrInvalidCredentials
	}
	return principal, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes session records past their expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpiredSessions(ctx)
}
