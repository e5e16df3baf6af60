package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis store.
type RedisConfig struct {
	URL    string
	Prefix string

	// MaxValueBytes rejects larger values with ErrCapacityExceeded. 0 = no limit.
	MaxValueBytes int
}

// Redis is a Store backed by plain Redis strings.
type Redis struct {
	client   *redis.Client
	prefix   string
	maxValue int
}

// NewRedis connects to Redis. Returns error if the connection fails.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Redis{
		client:   client,
		prefix:   cfg.Prefix,
		maxValue: cfg.MaxValueBytes,
	}, nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return v, nil
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, key string, value []byte) error {
	if r.maxValue > 0 && len(value) > r.maxValue {
		return ErrCapacityExceeded
	}

	err := r.client.Set(ctx, r.prefix+key, value, 0).Err()
	if err != nil {
		// maxmemory with a noeviction policy answers "OOM command not allowed".
		if strings.HasPrefix(err.Error(), "OOM") {
			return fmt.Errorf("saving %s: %w", key, ErrCapacityExceeded)
		}
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
