// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/research-hub/pkg/types"
)

const defaultRedisPrefix = "research-hub:"

// RedisBackend stores snapshots as plain Redis string values.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a backend for the Redis server named in cfg.
// The connection is established lazily on first use.
func NewRedisBackend(cfg types.StorageConfig) *RedisBackend {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 2 * time.Second,
	})
	return &RedisBackend{client: client, prefix: prefix}
}

// Load returns the stored blob for key.
func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s from redis: %w", key, err)
	}
	return data, nil
}

// Save stores data under key without expiry; cache entries carry their own TTLs.
func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("saving snapshot %s to redis: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting snapshot %s from redis: %w", key, err)
	}
	return nil
}

// Close closes the client connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
