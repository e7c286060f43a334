package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
	"github.com/StreallyX/payroll-saas-sub000/internal/shared"
)

// Resolver turns a principal id into the effective access context. It is the
// single authority every request passes through; the gate and the scope
// resolver only consume what it produces.
type Resolver struct {
	repo   Repository
	cache  *AccessCache
	logger *slog.Logger
}

// NewResolver builds the resolver. cache may be nil, which disables caching.
func NewResolver(repo Repository, cache *AccessCache, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, cache: cache, logger: logger}
}

// Resolve loads the access context for a principal. Inactive or missing
// principals resolve to ErrUnauthenticated: a stale session never yields a
// usable context. Super-admin contexts are rebuilt on every request and never
// cached; there is no tenant generation to pin them to.
func (r *Resolver) Resolve(ctx context.Context, principalID int64) (rbac.Access, error) {
	if r.cache != nil {
		if snap, err := r.cache.get(ctx, principalID); err == nil {
			return r.fromSnapshot(snap), nil
		} else if !errors.Is(err, errCacheMiss) {
			r.logger.Warn("access cache read failed", "principal_id", principalID, "error", err)
		}
	}

	principal, err := r.repo.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Access{}, fmt.Errorf("identity: principal %d: %w", principalID, shared.ErrUnauthenticated)
		}
		return rbac.Access{}, err
	}
	if !principal.IsActive {
		return rbac.Access{}, fmt.Errorf("identity: principal %d inactive: %w", principalID, shared.ErrUnauthenticated)
	}
	// The user anchor is always the principal itself, whatever the store says.
	principal.Anchors.UserID = principal.ID
	if principal.IsSuperAdmin {
		return rbac.Access{PrincipalID: principal.ID, IsSuperAdmin: true, Anchors: principal.Anchors}, nil
	}

	// Pin the tenant generation before loading role keys. A mutation that
	// commits mid-load bumps the counter past this value, so the snapshot
	// written below is already orphaned and the next resolve reloads.
	cacheable := r.cache != nil
	var generation int64
	if cacheable {
		var genErr error
		if generation, genErr = r.cache.generation(ctx, principal.TenantID); genErr != nil {
			r.logger.Warn("access generation read failed", "principal_id", principalID, "error", genErr)
			cacheable = false
		}
	}

	rawKeys, err := r.repo.RolePermissionKeys(ctx, principal.RoleID)
	if err != nil {
		return rbac.Access{}, err
	}
	access := rbac.Access{
		PrincipalID: principal.ID,
		TenantID:    principal.TenantID,
		Keys:        r.parseKeys(rawKeys, principal.ID),
		Anchors:     principal.Anchors,
	}

	if cacheable {
		snap := snapshot{
			PrincipalID: access.PrincipalID,
			TenantID:    access.TenantID,
			Keys:        rawKeys,
			Anchors:     access.Anchors,
			Generation:  generation,
		}
		if err := r.cache.put(ctx, snap); err != nil {
			r.logger.Warn("access cache write failed", "principal_id", principalID, "error", err)
		}
	}
	return access, nil
}

// parseKeys converts stored key strings into typed keys. A row that no longer
// parses grants nothing; it is logged and skipped rather than failing the
// whole resolution.
func (r *Resolver) parseKeys(raw []string, principalID int64) map[rbac.Key]struct{} {
	keys := make(map[rbac.Key]struct{}, len(raw))
	for _, value := range raw {
		key, err := rbac.ParseKey(value)
		if err != nil {
			r.logger.Warn("skipping unparseable permission key",
				"key", value, "principal_id", principalID, "error", err)
			continue
		}
		keys[key] = struct{}{}
	}
	return keys
}

func (r *Resolver) fromSnapshot(snap snapshot) rbac.Access {
	return rbac.Access{
		PrincipalID: snap.PrincipalID,
		TenantID:    snap.TenantID,
		Keys:        r.parseKeys(snap.Keys, snap.PrincipalID),
		Anchors:     snap.Anchors,
	}
}
