package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "raffle-client:"
	redisOpTimeout     = 3 * time.Second
)

// Redis stores keys in a Redis server under a common prefix, so several
// hosts can share one session.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a Redis backend for the server at addr.
func NewRedis(addr string, db int, prefix string) *Redis {
	return NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr, DB: db}), prefix)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &Redis{client: client, prefix: prefix}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kvstore: redis ping: %w", err)
	}

	return nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}

// ReadKey returns the value stored under name.
func (r *Redis) ReadKey(name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("kvstore: redis get %q: %w", name, err)
	}

	return v, true, nil
}

// WriteKey stores value under name with no expiry.
func (r *Redis) WriteKey(name, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+name, value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set %q: %w", name, err)
	}

	return nil
}

// DeleteKey removes name. Missing keys are not an error.
func (r *Redis) DeleteKey(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+name).Err(); err != nil {
		return fmt.Errorf("kvstore: redis del %q: %w", name, err)
	}

	return nil
}
