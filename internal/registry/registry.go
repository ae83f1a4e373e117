// Package registry declares every resource collection in one place: its name,
// remote endpoint, and cache behavior. It is built once at startup from
// config, so collection behavior is never inferred from string literals
// scattered across call sites.
package registry

import (
	"fmt"
	"time"

	"inventory-sync-service/internal/config"
)

type Collection struct {
	Name     string
	Endpoint string
	CacheKey string
	CacheTTL time.Duration
}

type Registry struct {
	byName map[string]Collection
	order  []string
}

func Build(cfgs []config.CollectionConfig) (*Registry, error) {
	r := &Registry{byName: make(map[string]Collection)}

	for _, c := range cfgs {
		if c.Name == "" {
			return nil, fmt.Errorf("collection with empty name")
		}
		if c.Endpoint == "" {
			return nil, fmt.Errorf("collection %s: endpoint is required", c.Name)
		}
		if _, exists := r.byName[c.Name]; exists {
			return nil, fmt.Errorf("duplicate collection: %s", c.Name)
		}

		cacheKey := c.CacheKey
		if cacheKey == "" {
			cacheKey = c.Name + "_cache"
		}

		r.byName[c.Name] = Collection{
			Name:     c.Name,
			Endpoint: c.Endpoint,
			CacheKey: cacheKey,
			CacheTTL: c.GetCacheTTL(),
		}
		r.order = append(r.order, c.Name)
	}

	return r, nil
}

func (r *Registry) Get(name string) (Collection, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns collections in declaration order.
func (r *Registry) All() []Collection {
	out := make([]Collection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
