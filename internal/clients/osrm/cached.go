package osrm

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/cache"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
)

// CachedRouter stores resolved geometries so repeated requests through the
// same waypoints (undo/redo, recomputing an unchanged triple) skip the network.
// Failures are never cached.
type CachedRouter struct {
	next    routing.Router
	cache   *cache.Cache
	profile string
	ttl     time.Duration
}

// NewCachedRouter wraps next with a cache. profile namespaces the keys.
func NewCachedRouter(next routing.Router, c *cache.Cache, profile string, ttl time.Duration) *CachedRouter {
	if ttl <= 0 {
		ttl = DefaultConfig().CacheTTL
	}
	return &CachedRouter{next: next, cache: c, profile: profile, ttl: ttl}
}

// ResolveRoute implements routing.Router
func (r *CachedRouter) ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
	key := cache.RouteKey(r.profile, waypoints)

	line, found, err := r.cache.GetRoute(key)
	if err != nil {
		logging.Warnw(ctx, "Route cache read failed", "key", key, "error", err)
	} else if found {
		return line, nil
	}

	line, err = r.next.ResolveRoute(ctx, waypoints)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetRoute(key, line, r.ttl); err != nil {
		logging.Warnw(ctx, "Route cache write failed", "key", key, "error", err)
	}
	return line, nil
}
