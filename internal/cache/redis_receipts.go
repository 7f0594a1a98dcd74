// Package cache holds Redis-backed stores.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "shipping:webhook:"

// RedisReceiptStore remembers processed webhook deliveries in Redis. Expiry is
// enforced by the key TTL, so reads never see an expired receipt.
type RedisReceiptStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisReceiptStore connects to Redis and verifies the connection.
func NewRedisReceiptStore(ctx context.Context, cfg RedisConfig) (*RedisReceiptStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisReceiptStoreWithClient(client, ""), nil
}

// NewRedisReceiptStoreWithClient wraps an existing client.
func NewRedisReceiptStoreWithClient(client *redis.Client, keyPrefix string) *RedisReceiptStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisReceiptStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Key returns the Redis key used for a receipt.
func (s *RedisReceiptStore) Key(key string) string {
	return s.keyPrefix + key
}

// MarkProcessed marks key as processed for ttl. It returns false when the key
// was already marked.
func (s *RedisReceiptStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.Key(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook as processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks whether key is marked.
func (s *RedisReceiptStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.Key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check webhook receipt: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis client.
func (s *RedisReceiptStore) Close() error {
	return s.client.Close()
}
