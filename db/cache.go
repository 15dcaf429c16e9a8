package db

import (
	"context"
	"sync"

	"fairplay/config"
	"fairplay/state"

	"github.com/patrickmn/go-cache"
)

// LocalCache keeps current commitment views in process memory. It serves the
// same role as the Redis cache for single-process deployments.
type LocalCache struct {
	mu    sync.Mutex
	views *cache.Cache
}

// NewLocalCache creates an empty cache.
func NewLocalCache() *LocalCache {
	return &LocalCache{views: cache.New(config.CurrentHashTTL, 2*config.CurrentHashTTL)}
}

// SetCurrent caches the namespace's current commitment view unless a view
// activated later is already cached.
func (c *LocalCache) SetCurrent(ctx context.Context, view state.CommitmentView) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.views.Get(view.Namespace); found {
		if v.(state.CommitmentView).CreatedAt.After(view.CreatedAt) {
			return nil
		}
	}
	c.views.Set(view.Namespace, view, cache.DefaultExpiration)
	return nil
}

// Current returns the cached view, if any.
func (c *LocalCache) Current(ctx context.Context, namespace string) (state.CommitmentView, bool, error) {
	v, found := c.views.Get(namespace)
	if !found {
		return state.CommitmentView{}, false, nil
	}
	return v.(state.CommitmentView), true, nil
}
