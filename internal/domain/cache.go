package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the last good chain snapshot per pool so consumers can
// render something while a refresh is in flight. Entries carry a short TTL;
// an expired or missing entry returns ErrNotFound.
type SnapshotCache interface {
	Set(ctx context.Context, poolAddress string, snap ChainPoolSnapshot) error
	Get(ctx context.Context, poolAddress string) (ChainPoolSnapshot, error)
	Invalidate(ctx context.Context, poolAddress string) error
}

// AggregateCache holds the slow-cadence pool aggregates (volumes, counts,
// recent bets).
type AggregateCache interface {
	Set(ctx context.Context, marketID string, agg PoolAggregates) error
	Get(ctx context.Context, marketID string) (PoolAggregates, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting for the public API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Settlement actions for a pool run
// under a lock keyed by the pool address so two admin processes cannot race
// the same resolution.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus carries pool state updates between processes. When the poller and
// the HTTP server run as separate deployments, the poller publishes each
// derived state and the server's websocket hub subscribes; in a combined
// deployment both sides still go through the bus so the wiring is identical.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel that emits payloads until ctx is
	// cancelled. Glob-style channel patterns are supported.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PoolStateChannel returns the bus channel carrying one pool's state updates.
func PoolStateChannel(poolAddress string) string {
	return "pool_state:" + poolAddress
}

// PoolStatePattern matches every pool's state channel.
const PoolStatePattern = "pool_state:*"
