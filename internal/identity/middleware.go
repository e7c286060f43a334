package identity

import (
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Hydrate resolves the session's principal into an access context and stores
// it on the request. Anonymous requests pass through without one; the
// authorization gate rejects them downstream. A session pointing at a missing
// or inactive principal is treated the same as no session.
func Hydrate(resolver *Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			principalID, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil || principalID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			access, err := resolver.Resolve(r.Context(), principalID)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthenticated) {
					logger.Error("access resolution failed",
						slog.Int64("principal_id", principalID), slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithAccess(r.Context(), access)))
		})
	}
}
