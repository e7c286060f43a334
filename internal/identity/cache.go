package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/StreallyX/payroll-saas-sub000/internal/rbac"
)

// snapshot is the cached form of a resolved access context. Keys are stored as
// strings; they re-enter the typed world through rbac.ParseKey on read.
type snapshot struct {
	PrincipalID int64        `json:"principal_id"`
	TenantID    int64        `json:"tenant_id"`
	Keys        []string     `json:"keys"`
	Anchors     rbac.Anchors `json:"anchors"`
	Generation  int64        `json:"generation"`
}

// AccessCache is a read-through Redis cache for resolved access contexts.
//
// Each tenant carries a generation counter. Cached snapshots remember the
// generation they were built under; a role mutation bumps the counter, which
// orphans every snapshot of that tenant at once. The TTL only bounds memory,
// correctness comes from the generation check.
type AccessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAccessCache builds the cache with the given entry TTL.
func NewAccessCache(client *redis.Client, ttl time.Duration) *AccessCache {
	return &AccessCache{client: client, ttl: ttl}
}

var errCacheMiss = errors.New("identity: cache miss")

func accessKey(principalID int64) string {
	return fmt.Sprintf("access:principal:%d", principalID)
}

func generationKey(tenantID int64) string {
	return fmt.Sprintf("access:generation:%d", tenantID)
}

// generation returns the tenant's current generation; absent means zero.
func (c *AccessCache) generation(ctx context.Context, tenantID int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// get returns the cached snapshot if it is still current for its tenant.
func (c *AccessCache) get(ctx context.Context, principalID int64) (snapshot, error) {
	raw, err := c.client.Get(ctx, accessKey(principalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot{}, errCacheMiss
	}
	if err != nil {
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, errCacheMiss
	}
	gen, err := c.generation(ctx, snap.TenantID)
	if err != nil {
		return snapshot{}, err
	}
	if snap.Generation != gen {
		return snapshot{}, errCacheMiss
	}
	return snap, nil
}

// put stores the snapshot. The caller stamps Generation with the value it
// read before loading from the store, so an Invalidate that lands during the
// load orphans the snapshot instead of being absorbed into it.
func (c *AccessCache) put(ctx context.Context, snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, accessKey(snap.PrincipalID), raw, c.ttl).Err()
}

// Invalidate bumps the tenant's generation, orphaning every cached snapshot
// of that tenant. It satisfies rbac.Invalidator.
func (c *AccessCache) Invalidate(ctx context.Context, tenantID int64) error {
	return c.client.Incr(ctx, generationKey(tenantID)).Err()
}

// Evict drops one principal's snapshot, for deactivation and logout.
func (c *AccessCache) Evict(ctx context.Context, principalID int64) error {
	return c.client.Del(ctx, accessKey(principalID)).Err()
}
