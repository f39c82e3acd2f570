package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReservationCache implements ports.ReservationCache using Redis. It maps a
// checkout flow's caller reference to the serialized reservation movement,
// so retried reserve calls short-circuit without touching the ledger.
type ReservationCache struct {
	client *goredis.Client
	prefix string
}

// NewReservationCache creates a new Redis-backed reservation cache.
func NewReservationCache(client *goredis.Client) *ReservationCache {
	return &ReservationCache{
		client: client,
		prefix: "reservation:",
	}
}

// Get retrieves a cached reservation by caller reference.
// Returns nil, nil if the key does not exist.
func (c *ReservationCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis reservation get: %w", err)
	}
	return val, nil
}

// Set stores a reservation in the cache with TTL.
func (c *ReservationCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis reservation set: %w", err)
	}
	return nil
}
