package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bellanapoli/bellad/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache using Redis hashes with
// JSON-serialized snapshot data.
//
// Key schema:
//
//	snapshot:{poolAddress} - hash with field "data" containing JSON
//
// Entries carry a short TTL so a stalled poller cannot serve stale chain
// state indefinitely; an expired entry reads as domain.ErrNotFound and the
// consumer falls back to time-only derivation.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(pool string) string { return "snapshot:" + pool }

// Set stores a snapshot with the cache TTL. Only complete snapshots should be
// cached; the poller enforces that before calling.
func (sc *SnapshotCache) Set(ctx context.Context, poolAddress string, snap domain.ChainPoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", poolAddress, err)
	}

	key := snapshotKey(poolAddress)
	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, sc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", poolAddress, err)
	}
	return nil
}

// Get retrieves the last good snapshot for a pool. It returns
// domain.ErrNotFound when no fresh entry exists.
func (sc *SnapshotCache) Get(ctx context.Context, poolAddress string) (domain.ChainPoolSnapshot, error) {
	data, err := sc.rdb.HGet(ctx, snapshotKey(poolAddress), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ChainPoolSnapshot{}, domain.ErrNotFound
		}
		return domain.ChainPoolSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", poolAddress, err)
	}

	var snap domain.ChainPoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ChainPoolSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", poolAddress, err)
	}
	return snap, nil
}

// Invalidate removes a pool's snapshot from the cache.
func (sc *SnapshotCache) Invalidate(ctx context.Context, poolAddress string) error {
	if err := sc.rdb.Del(ctx, snapshotKey(poolAddress)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", poolAddress, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
