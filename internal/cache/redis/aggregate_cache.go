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

const aggregateTTL = 10 * time.Minute

// AggregateCache implements domain.AggregateCache using Redis hashes with
// JSON-serialized aggregate data.
//
// Key schema:
//
//	aggregates:{marketID} - hash with field "data" containing JSON
//
// The TTL is twice the refresh cadence so one missed cycle does not blank
// market cards.
type AggregateCache struct {
	rdb *redis.Client
}

// NewAggregateCache creates an AggregateCache backed by the given Client.
func NewAggregateCache(c *Client) *AggregateCache {
	return &AggregateCache{rdb: c.Underlying()}
}

func aggregateKey(marketID string) string { return "aggregates:" + marketID }

// Set stores a market's aggregates with the cache TTL.
func (ac *AggregateCache) Set(ctx context.Context, marketID string, agg domain.PoolAggregates) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("redis: marshal aggregates %s: %w", marketID, err)
	}

	key := aggregateKey(marketID)
	pipe := ac.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, aggregateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set aggregates %s: %w", marketID, err)
	}
	return nil
}

// Get retrieves a market's aggregates. It returns domain.ErrNotFound when no
// fresh entry exists.
func (ac *AggregateCache) Get(ctx context.Context, marketID string) (domain.PoolAggregates, error) {
	data, err := ac.rdb.HGet(ctx, aggregateKey(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolAggregates{}, domain.ErrNotFound
		}
		return domain.PoolAggregates{}, fmt.Errorf("redis: get aggregates %s: %w", marketID, err)
	}

	var agg domain.PoolAggregates
	if err := json.Unmarshal(data, &agg); err != nil {
		return domain.PoolAggregates{}, fmt.Errorf("redis: unmarshal aggregates %s: %w", marketID, err)
	}
	return agg, nil
}

// Invalidate removes a market's aggregates from the cache.
func (ac *AggregateCache) Invalidate(ctx context.Context, marketID string) error {
	if err := ac.rdb.Del(ctx, aggregateKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate aggregates %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AggregateCache = (*AggregateCache)(nil)
