package httpx

import (
	"errors"
	"net/http"

	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. The detail
// field carries only the user-safe message; the original error stays server-side.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(shared.ErrUnauthenticated))
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrForbidden))
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(shared.ErrNotFound))
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", shared.UserSafeMessage(shared.ErrConflict))
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrMalformedKey), errors.Is(err, shared.ErrInvalidPermission):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(shared.ErrValidation))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
