package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "driftscan:settings:"

// RedisStore keeps each namespace in a Redis hash. It lets a fleet of test
// devices or simulators share one set of preferences.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the hash key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// NewRedisStore wraps an existing client. The client lifecycle stays with
// the caller.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// OpenRedisStore dials rawURL and verifies the connection. Close releases
// the client.
func OpenRedisStore(ctx context.Context, rawURL string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("settings: parse redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("settings: redis ping failed: %w", err)
	}
	r := NewRedisStore(client, opts...)
	r.owned = true
	return r, nil
}

func (r *RedisStore) hashKey(namespace string) string {
	return r.prefix + namespace
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if err := validate(namespace, key); err != nil {
		return "", false, err
	}
	v, err := r.client.HGet(ctx, r.hashKey(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: redis get %s/%s: %w", namespace, key, err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.hashKey(namespace), key, value).Err(); err != nil {
		return fmt.Errorf("settings: redis set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	if err := r.client.HDel(ctx, r.hashKey(namespace), key).Err(); err != nil {
		return fmt.Errorf("settings: redis delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Close closes the client only if OpenRedisStore created it.
func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
