package factcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "claimlens:factcheck:"

// RedisKV is the Redis-backed durable cache tier for deployments that share
// verdicts across daemon instances.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV constructs the Redis tier. The connection is validated lazily
// on first use.
func NewRedisKV(addr, password string, db int) *RedisKV {
	return &RedisKV{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get fetches a cached verdict by key.
func (r *RedisKV) Get(ctx context.Context, key string) (Entry, bool, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get cached verdict: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal cached verdict: %w", err)
	}
	return entry, true, nil
}

// Put upserts a cached verdict. Entries do not expire; normalized claim text
// stays valid indefinitely and the operator flushes the DB to reset.
func (r *RedisKV) Put(ctx context.Context, key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cached verdict: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, payload, 0).Err(); err != nil {
		return fmt.Errorf("put cached verdict: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisKV) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
