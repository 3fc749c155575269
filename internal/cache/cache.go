// Package cache wraps the optional Redis connection. Redis only backs the
// rate limiter; the server runs fine without it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var redisLatency metric.Float64Histogram

type Cache struct {
	client *redis.Client
}

// New creates a new Redis connection from a URL and verifies it with a ping.
func New(dsn string) (*Cache, error) {
	var err error

	meter := otel.Meter("redis-client")
	redisLatency, err = meter.Float64Histogram("redis.command.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis.command.latency instrument: %w", err)
	}

	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, span := otel.Tracer("redis-client").Start(context.Background(), "redis.ping")
	defer span.End()
	if err := client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ping Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	span.SetStatus(codes.Ok, "Redis connected successfully")

	return &Cache{client: client}, nil
}

// GetClient returns the underlying Redis client.
func (c *Cache) GetClient() *redis.Client {
	return c.client
}

// Health pings Redis and records command latency.
func (c *Cache) Health(ctx context.Context) error {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.ping")
	defer func() {
		redisLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("redis.command", "ping")))
		span.End()
	}()
	err := c.client.Ping(ctx).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Redis ping failed")
	}
	return err
}

// Close releases the client's connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
