// Package redis opens the shared Redis client backing distributed monitoring
// window counters and exports its pool statistics.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"workspace-audit/internal/platform/config"
)

// Client is a go-redis client the readiness check can ping.
type Client struct {
	*redis.Client
}

// New parses the URL, applies pool settings and pings. An empty URL returns a
// nil Client and no error; callers fall back to per-process counters.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ClientName = "workspace-audit"

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Check(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RegisterMetrics exposes the connection pool counters. Values are read from
// PoolStats at scrape time.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	stat := func(pick func(*redis.PoolStats) uint32) func() float64 {
		return func() float64 { return float64(pick(c.PoolStats())) }
	}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "workspace_audit_redis_pool_hits_total",
			Help: "Connections found idle in the pool",
		}, stat(func(s *redis.PoolStats) uint32 { return s.Hits })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "workspace_audit_redis_pool_misses_total",
			Help: "Connections that had to be dialed",
		}, stat(func(s *redis.PoolStats) uint32 { return s.Misses })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "workspace_audit_redis_pool_timeouts_total",
			Help: "Waits for a pooled connection that timed out",
		}, stat(func(s *redis.PoolStats) uint32 { return s.Timeouts })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "workspace_audit_redis_pool_total_conns",
			Help: "Open connections in the pool",
		}, stat(func(s *redis.PoolStats) uint32 { return s.TotalConns })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "workspace_audit_redis_pool_idle_conns",
			Help: "Idle connections in the pool",
		}, stat(func(s *redis.PoolStats) uint32 { return s.IdleConns })),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
