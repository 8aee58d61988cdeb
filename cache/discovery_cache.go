package cache

import (
	"context"
	"sync"
	"time"

	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
)

type discoveryEntry struct {
	Feed      model.DiscoveryFeed `json:"feed"`
	WrittenAt time.Time           `json:"written_at"`
}

// DiscoveryCache holds the single discovery feed entry.
type DiscoveryCache struct {
	mu sync.RWMutex
	// persistMu orders snapshot writes, taken before mu.
	persistMu sync.Mutex
	entry     *discoveryEntry
	ttl       time.Duration
	kv        utils.KeyValueStore
	now       Clock
}

func NewDiscoveryCache(ttl time.Duration, kv utils.KeyValueStore) *DiscoveryCache {
	return &DiscoveryCache{ttl: ttl, kv: kv, now: time.Now}
}

// Get returns the cached feed unless it is missing or older than the TTL.
func (c *DiscoveryCache) Get(ctx context.Context) (model.DiscoveryFeed, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil {
		return model.DiscoveryFeed{}, false
	}
	if expired(entry.WrittenAt, c.ttl, c.now()) {
		c.mu.Lock()
		if c.entry == entry {
			c.entry = nil
		}
		c.mu.Unlock()
		return model.DiscoveryFeed{}, false
	}
	return entry.Feed, true
}

func (c *DiscoveryCache) Set(ctx context.Context, feed model.DiscoveryFeed) {
	entry := &discoveryEntry{Feed: feed, WrittenAt: c.now()}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()
	persist(ctx, c.kv, DiscoveryKey, entry, c.ttl)
}

func (c *DiscoveryCache) Invalidate(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
	remove(ctx, c.kv, DiscoveryKey)
}

// Rehydrate loads the persisted entry, keeping it only if still fresh.
func (c *DiscoveryCache) Rehydrate(ctx context.Context) error {
	entry := discoveryEntry{}
	found, err := load(ctx, c.kv, DiscoveryKey, &entry)
	if err != nil || !found {
		return err
	}
	if expired(entry.WrittenAt, c.ttl, c.now()) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &entry
	return nil
}
