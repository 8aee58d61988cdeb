package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/pkg/errors"
	"github.com/playlog/backend/model"
	"github.com/playlog/backend/utils"
)

type detailsEntry struct {
	Details   model.GameDetails `json:"details"`
	WrittenAt time.Time         `json:"written_at"`
}

// DetailsCache holds game details keyed by game id. It never holds more than
// its capacity: the least recently written entry is evicted first, reads do
// not count as use.
type DetailsCache struct {
	mu sync.Mutex
	// persistMu orders snapshot writes, the last mutation is the last one
	// persisted. Taken before mu.
	persistMu sync.Mutex
	entries   *simplelru.LRU
	ttl       time.Duration
	capacity  int
	kv        utils.KeyValueStore
	now       Clock
}

func NewDetailsCache(capacity int, ttl time.Duration, kv utils.KeyValueStore) (*DetailsCache, error) {
	entries, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create details cache")
	}
	return &DetailsCache{entries: entries, ttl: ttl, capacity: capacity, kv: kv, now: time.Now}, nil
}

// Get returns the cached details of gameId unless missing or expired.
func (c *DetailsCache) Get(ctx context.Context, gameId int64) (model.GameDetails, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Peek(gameId)
	if !ok {
		return model.GameDetails{}, false
	}
	entry := v.(*detailsEntry)
	if expired(entry.WrittenAt, c.ttl, c.now()) {
		c.entries.Remove(gameId)
		return model.GameDetails{}, false
	}
	return entry.Details, true
}

func (c *DetailsCache) Set(ctx context.Context, details model.GameDetails) {
	details.Stats = nil

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	c.entries.Add(details.Id, &detailsEntry{Details: details, WrittenAt: c.now()})
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	persist(ctx, c.kv, DetailsKey, snapshot, c.ttl)
}

func (c *DetailsCache) Invalidate(ctx context.Context, gameId int64) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	removed := c.entries.Remove(gameId)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if removed {
		persist(ctx, c.kv, DetailsKey, snapshot, c.ttl)
	}
}

func (c *DetailsCache) Purge(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
	remove(ctx, c.kv, DetailsKey)
}

func (c *DetailsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys returns cached game ids from the least to the most recently written.
func (c *DetailsCache) Keys() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := []int64{}
	for _, k := range c.entries.Keys() {
		ids = append(ids, k.(int64))
	}
	return ids
}

// snapshotLocked lists live entries oldest first. Callers hold c.mu.
func (c *DetailsCache) snapshotLocked() []detailsEntry {
	now := c.now()
	snapshot := []detailsEntry{}
	for _, k := range c.entries.Keys() {
		v, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		entry := v.(*detailsEntry)
		if expired(entry.WrittenAt, c.ttl, now) {
			continue
		}
		snapshot = append(snapshot, *entry)
	}
	return snapshot
}

// Rehydrate loads persisted entries, dropping expired ones. When the snapshot
// holds more than the capacity, the most recently written entries win.
func (c *DetailsCache) Rehydrate(ctx context.Context) error {
	snapshot := []detailsEntry{}
	found, err := load(ctx, c.kv, DetailsKey, &snapshot)
	if err != nil || !found {
		return err
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].WrittenAt.Before(snapshot[j].WrittenAt)
	})

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range snapshot {
		entry := snapshot[i]
		if expired(entry.WrittenAt, c.ttl, now) {
			continue
		}
		c.entries.Add(entry.Details.Id, &entry)
	}
	return nil
}
