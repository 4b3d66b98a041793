package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "audit:monitor:"

// RedisCounter keeps one sorted set per key, scored by event time in
// milliseconds. Suppression marks are plain keys set with NX and a TTL.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisCounter)

// WithKeyPrefix namespaces every key written by the counter.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCounter) {
		c.prefix = prefix
	}
}

func NewRedisCounter(client redis.UniversalClient, opts ...RedisOption) *RedisCounter {
	c := &RedisCounter{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCounter) Add(ctx context.Context, key, member string, at time.Time, window time.Duration) (int64, error) {
	k := c.prefix + "window:" + key
	cutoff := strconv.FormatInt(at.Add(-window).UnixMilli(), 10)

	pipe := c.client.TxPipeline()
	pipe.ZAddNX(ctx, k, redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: count window %s: %w", key, err)
	}
	return card.Val(), nil
}

func (c *RedisCounter) Suppress(ctx context.Context, key string, at time.Time, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+"suppress:"+key, at.UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: suppress %s: %w", key, err)
	}
	return ok, nil
}

var _ WindowCounter = (*RedisCounter)(nil)
