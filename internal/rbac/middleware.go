package rbac

import (
	"log/slog"
	"net/http"

	"github.com/StreallyX/payroll-saas-sub000/internal/platform/httpx"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

type requirementMode int

const (
	modeAny requirementMode = iota
	modeAll
)

// Requirement is a declarative permission expression attached to an operation:
// a single key, "any of" or "all of". Requirements are validated against the
// catalog when the gate is built, so an unknown key fails at wiring time, not
// per request.
type Requirement struct {
	mode requirementMode
	keys []Key
}

// RequireKey requires exactly one permission.
func RequireKey(key Key) Requirement {
	return Requirement{mode: modeAny, keys: []Key{key}}
}

// AnyOf requires at least one of the given permissions.
func AnyOf(keys ...Key) Requirement {
	return Requirement{mode: modeAny, keys: keys}
}

// AllOf requires every one of the given permissions.
func AllOf(keys ...Key) Requirement {
	return Requirement{mode: modeAll, keys: keys}
}

// Keys exposes the required keys, for logging and metrics.
func (r Requirement) Keys() []Key {
	out := make([]Key, len(r.keys))
	copy(out, r.keys)
	return out
}

// Evaluate decides the requirement against the access context. It is a pure
// function: no I/O, no recovery. An empty requirement never passes for a
// non-super-admin; the gate is fail-closed.
func Evaluate(req Requirement, access Access) bool {
	if access.IsSuperAdmin {
		return true
	}
	if len(req.keys) == 0 {
		return false
	}
	if req.mode == modeAll {
		return access.HasAll(req.keys...)
	}
	return access.HasAny(req.keys...)
}

// DenialRecorder counts authorization denials, keyed by resource.
type DenialRecorder interface {
	AuthzDenied(resource string)
}

// Middleware wires the authorization gate in front of HTTP handlers.
type Middleware struct {
	Catalog *Catalog
	Logger  *slog.Logger
	Metrics DenialRecorder
}

// Require returns a chi-compatible middleware enforcing the requirement.
// It panics if the requirement references a key outside the catalog: that is
// a programming error and must surface at startup.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	if m.Catalog == nil {
		panic("rbac: middleware built without a catalog")
	}
	if len(req.keys) == 0 {
		panic("rbac: empty requirement")
	}
	for _, key := range req.keys {
		if !m.Catalog.Exists(key) {
			panic("rbac: requirement references unknown permission " + key.String())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			// A tenant user without a tenant is an inconsistent context;
			// reject rather than guess.
			if !access.IsSuperAdmin && access.TenantID == 0 {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			if !Evaluate(req, access) {
				if m.Logger != nil {
					m.Logger.Warn("authorization denied",
						slog.Int64("principal", access.PrincipalID),
						slog.Any("required", req.Keys()),
					)
				}
				if m.Metrics != nil {
					m.Metrics.AuthzDenied(req.keys[0].Resource.String())
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny is shorthand for Require(AnyOf(keys...)).
func (m Middleware) RequireAny(keys ...Key) func(http.Handler) http.Handler {
	return m.Require(AnyOf(keys...))
}

// RequireAll is shorthand for Require(AllOf(keys...)).
func (m Middleware) RequireAll(keys ...Key) func(http.Handler) http.Handler {
	return m.Require(AllOf(keys...))
}
