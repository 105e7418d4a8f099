package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hardware-store/payment-gateway/internal/port/output"
	"github.com/redis/go-redis/v9"
)

// Processed callback deliveries are remembered for a day, comfortably past
// any provider's retry schedule.
const seenExpiry = 24 * time.Hour

// RedisCallbackStore implements the CallbackDedup output port with a SETNX
// guard per delivery key.
type RedisCallbackStore struct {
	client *redis.Client
}

// NewRedisCallbackStore creates a new Redis-backed dedup store.
func NewRedisCallbackStore(addr, password string, db int) *RedisCallbackStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCallbackStore{client: rdb}
}

// Seen atomically records the delivery key and reports whether it had
// already been recorded. SETNX makes the check-and-set a single round trip.
func (r *RedisCallbackStore) Seen(ctx context.Context, key string) (bool, error) {
	set, err := r.client.SetNX(ctx, "callback:"+key, 1, seenExpiry).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX error: %w", err)
	}
	return !set, nil
}

// Forget releases a delivery key recorded by Seen.
func (r *RedisCallbackStore) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, "callback:"+key).Err(); err != nil {
		return fmt.Errorf("redis DEL error: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisCallbackStore) Close() error {
	return r.client.Close()
}

var _ output.CallbackDedup = (*RedisCallbackStore)(nil)
