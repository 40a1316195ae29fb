package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a sent notification suppresses duplicates
const DefaultTTL = 72 * time.Hour

// Deduper claims one-time keys
type Deduper interface {
	// Acquire claims key and reports whether this caller got it
	Acquire(ctx context.Context, key string) (bool, error)
	// Release drops a claim so the work can be attempted again
	Release(ctx context.Context, key string) error
}

// RedisDeduper implements Deduper with SETNX keys that expire after ttl
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper connects to redisURL and verifies the connection
func NewRedisDeduper(ctx context.Context, redisURL string, ttl time.Duration) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(redisURL)

	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisDeduper{client: client, ttl: ttl}, nil
}

func (r *RedisDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}

func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Ping checks the redis connection
func (r *RedisDeduper) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (r *RedisDeduper) Close() error {
	return r.client.Close()
}

// NotificationKey identifies one notification of kind for an order reaching status
func NotificationKey(kind, orderID, status string) string {
	return fmt.Sprintf("notify:%s:%s:%s", kind, orderID, status)
}
