// Package cache is the short-TTL cache for read responses that are not full
// resource collections (dashboard aggregates, reports, prediction results).
// Entries live in the durable store's cache_entries table so they survive a
// restart, but expiry is lazy: an expired entry is a miss and is evicted on
// the read that discovers it. No background sweep runs.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"inventory-sync-service/internal/store"
)

type Cache struct {
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Cache {
	return &Cache{
		store: st,
		now:   time.Now,
	}
}

// Set stores data under key with the current timestamp, overwriting any prior
// entry unconditionally. TTL of zero means the entry never expires.
func (c *Cache) Set(ctx context.Context, key string, data any, ttl time.Duration) error {
	raw, err := marshal(data)
	if err != nil {
		return err
	}
	return c.store.PutCacheEntry(ctx, &store.CacheEntry{
		Key:      key,
		Data:     raw,
		StoredAt: c.now(),
		TTL:      ttl,
	})
}

// Get returns the entry for key, or (nil, nil) on a miss. An expired entry is
// treated as a miss and removed.
func (c *Cache) Get(ctx context.Context, key string) (*store.CacheEntry, error) {
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	if !c.fresh(entry) {
		if err := c.store.DeleteCacheEntry(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return entry, nil
}

func (c *Cache) IsFresh(ctx context.Context, key string) (bool, error) {
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		return false, err
	}
	return entry != nil && c.fresh(entry), nil
}

// GetAge reports how long ago the entry was stored. The second return value
// is false when no entry exists.
func (c *Cache) GetAge(ctx context.Context, key string) (time.Duration, bool, error) {
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if entry == nil {
		return 0, false, nil
	}
	return c.now().Sub(entry.StoredAt), true, nil
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.store.DeleteCacheEntry(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.store.ClearCacheEntries(ctx)
}

func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.store.ListCacheKeys(ctx)
}

func (c *Cache) fresh(entry *store.CacheEntry) bool {
	if entry.TTL == 0 {
		return true
	}
	return c.now().Sub(entry.StoredAt) <= entry.TTL
}

func marshal(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
