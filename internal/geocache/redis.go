package geocache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salemap/saled/pkg/model"
)

const defaultKeyPrefix = "geocache:"

// RedisCache stores one hash per normalized address key.
// Fields: address, lat, lng, updated_at. Entries carry no TTL.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: defaultKeyPrefix}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + key
}

// Get returns the entry for key, or (nil, nil) when absent.
// Unparseable coordinates come back as NaN so callers can reject them.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.GeocodeEntry, error) {
	vals, err := c.rdb.HGetAll(ctx, c.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("geocache get %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	entry := &model.GeocodeEntry{
		Key:     key,
		Address: vals["address"],
		Lat:     parseCoord(vals["lat"]),
		Lng:     parseCoord(vals["lng"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["updated_at"]); err == nil {
		entry.UpdatedAt = ts
	}
	return entry, nil
}

// Put merges entry into the stored hash inside one MULTI/EXEC.
// address is written only if the field does not exist yet.
func (c *RedisCache) Put(ctx context.Context, entry model.GeocodeEntry) error {
	k := c.redisKey(entry.Key)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if entry.Address != "" {
			pipe.HSetNX(ctx, k, "address", entry.Address)
		}
		pipe.HSet(ctx, k,
			"lat", strconv.FormatFloat(entry.Lat, 'f', -1, 64),
			"lng", strconv.FormatFloat(entry.Lng, 'f', -1, 64),
			"updated_at", entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("geocache put %s: %w", entry.Key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if c.rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func parseCoord(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
