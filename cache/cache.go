// Package cache holds the game metadata caches in front of IGDB. Entries are
// stamped with their write time, expire after a TTL, and are persisted to a
// key-value store so that a restarted server starts warm.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/playlog/backend/utils"
	Logger "github.com/playlog/backend/utils/log"
)

const (
	snapshotNamespace = "cache"
	DiscoveryKey      = "discovery"
	DetailsKey        = "details"
)

// Clock returns the current time, tests swap it for a fake one.
type Clock func() time.Time

func expired(writtenAt time.Time, ttl time.Duration, now time.Time) bool {
	return !now.Before(writtenAt.Add(ttl))
}

func snapshotKey(name string) string {
	key, err := utils.NewRedisKeyParser().EncodeKey(snapshotNamespace, name)
	if err != nil {
		panic(err)
	}
	return key
}

// persist writes a JSON snapshot, failures are logged and swallowed.
func persist(ctx context.Context, kv utils.KeyValueStore, name string, snapshot interface{}, ttl time.Duration) {
	if kv == nil {
		return
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		Logger.Log.WithError(err).Errorf("fail to encode %s cache snapshot", name)
		return
	}
	if err := kv.Set(ctx, snapshotKey(name), b, ttl); err != nil {
		Logger.Log.WithError(err).Warnf("fail to persist %s cache snapshot", name)
	}
}

// remove drops a snapshot, failures are logged and swallowed.
func remove(ctx context.Context, kv utils.KeyValueStore, name string) {
	if kv == nil {
		return
	}
	if err := kv.Del(ctx, snapshotKey(name)); err != nil {
		Logger.Log.WithError(err).Warnf("fail to delete %s cache snapshot", name)
	}
}

// load reads a snapshot into dst, found=false when there is none.
func load(ctx context.Context, kv utils.KeyValueStore, name string, dst interface{}) (bool, error) {
	if kv == nil {
		return false, nil
	}
	b, found, err := kv.Get(ctx, snapshotKey(name))
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, errors.Wrapf(err, "decode %s cache snapshot", name)
	}
	return true, nil
}
