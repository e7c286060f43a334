package shared

import "errors"

var (
	// ErrUnauthenticated indicates the request carries no valid principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks a required permission or scope.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the resource is absent or outside the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or referential violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("validation failed")
	// ErrMalformedKey indicates a permission key that does not match the grammar.
	ErrMalformedKey = errors.New("malformed permission key")
	// ErrInvalidPermission indicates a permission key unknown to the catalog.
	ErrInvalidPermission = errors.New("permission not in catalog")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps internal errors to messages safe to return to callers.
// Permission internals (role contents, other users' grants) are never echoed back.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "authentication required"
	case errors.Is(err, ErrForbidden):
		return "insufficient permissions"
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrConflict):
		return "conflicting state"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	default:
		return "internal error"
	}
}
