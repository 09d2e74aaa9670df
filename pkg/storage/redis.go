package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/moneta-app/moneta-core/pkg/resilience"
)

// RedisConfig holds connection settings for the Redis-backed store
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisStore implements Store using Redis. Operations are wrapped with a
// circuit breaker and exponential-backoff retry, so transient backend
// hiccups do not surface to the cache engine.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewRedisStore creates a new Redis-backed store and verifies connectivity
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	retry := resilience.DefaultRetryConfig()
	retry.RetryIfFn = func(err error) bool {
		// Absence and a tripped breaker are not transient
		return !errors.Is(err, redis.Nil) && !errors.Is(err, gobreaker.ErrOpenState)
	}

	return &RedisStore{
		client:  client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "redis-storage"}),
		retry:   retry,
	}
}

func (s *RedisStore) execute(ctx context.Context, op func() error) error {
	return resilience.Retry(ctx, s.retry, func() error {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, op()
		})
		return err
	})
}

// Get retrieves a value from the store
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.execute(ctx, func() error {
		v, err := s.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

// Set stores a value under key with no expiration; the cache engine owns
// TTL semantics in its record envelope.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	err := s.execute(ctx, func() error {
		return s.client.Set(ctx, key, value, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key from the store
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	err := s.execute(ctx, func() error {
		return s.client.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Keys returns every key currently in the store
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.execute(ctx, func() error {
		keys = keys[:0]
		iter := s.client.Scan(ctx, 0, "*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// MultiGet retrieves the given keys; absent keys are omitted from the result
func (s *RedisStore) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	var values []interface{}
	err := s.execute(ctx, func() error {
		v, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		values = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make(map[string]string, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			result[keys[i]] = str
		}
	}
	return result, nil
}

// MultiSet stores every entry in a single pipeline
func (s *RedisStore) MultiSet(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	err := s.execute(ctx, func() error {
		pipe := s.client.Pipeline()
		for k, v := range entries {
			pipe.Set(ctx, k, v, 0)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
