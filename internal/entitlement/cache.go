package entitlement

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"tenantgate/pkg/models"
)

type cacheKey struct {
	tenantID string
	role     models.Role
	version  int64
}

// CachedResolver memoizes Resolve results by tenant id, role and tenant
// version. Any tenant mutation bumps the version, so stale entries are never
// served; they simply age out of the LRU.
type CachedResolver struct {
	*Resolver
	cache *lru.Cache[cacheKey, Set]
}

// NewCachedResolver wraps r with an LRU of the given size.
func NewCachedResolver(r *Resolver, size int) (*CachedResolver, error) {
	c, err := lru.New[cacheKey, Set](size)
	if err != nil {
		return nil, fmt.Errorf("entitlement cache: %w", err)
	}
	return &CachedResolver{Resolver: r, cache: c}, nil
}

// Resolve returns the cached set for the tenant version or computes it.
func (c *CachedResolver) Resolve(tenant *models.Tenant, role models.Role) Set {
	if tenant == nil {
		return Empty()
	}
	key := cacheKey{tenantID: tenant.ID, role: role, version: tenant.Version}
	if set, ok := c.cache.Get(key); ok {
		return set
	}
	set := c.Resolver.Resolve(tenant, role)
	c.cache.Add(key, set)
	return set
}

// Purge drops every cached entry.
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}
