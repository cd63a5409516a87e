// Package redisstore is a Redis-backed settings store, letting several
// dashboard processes share one visibility state.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tinytelemetry/canopy/internal/model"
)

var _ model.KVStore = (*Store)(nil)

// Store namespaces every key as canopy:{instance}:setting:{key}.
type Store struct {
	rdb      *redis.Client
	instance string
}

// New connects a store for the named instance. The connection is lazy; use
// Ping to verify it.
func New(opts *redis.Options, instance string) (*Store, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &Store{rdb: redis.NewClient(opts), instance: instance}, nil
}

// SettingKey returns the Redis key holding setting key for instance.
func SettingKey(instance, key string) string {
	return fmt.Sprintf("canopy:%s:setting:%s", instance, key)
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Get reads key; a missing key is reported with ok=false.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, SettingKey(s.instance, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q from Redis: %w", key, err)
	}
	return v, true, nil
}

// Put writes key without expiry.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, SettingKey(s.instance, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write setting %q to Redis: %w", key, err)
	}
	return nil
}
