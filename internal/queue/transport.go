package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/praxis-sh/praxis/internal/config"
)

// Transport is the durable, at-least-once list primitive the queue runs on:
// push-to-tail, blocking pop-from-head, per-key expiry and scalar get/set.
// The production implementation is Redis; tests run an in-memory one.
type Transport interface {
	// PushTail appends a value to the tail of a list.
	PushTail(ctx context.Context, key string, value []byte) error
	// PopHead blocks up to timeout for the head of a list. A nil value with
	// a nil error means the wait timed out.
	PopHead(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	// Len returns the current length of a list.
	Len(ctx context.Context, key string) (int64, error)
	// Set stores a scalar value with an optional TTL (0 means no expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get fetches a scalar value. A nil value with a nil error means the key
	// does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisTransport implements Transport on go-redis. FIFO order comes from
// RPUSH at the tail and BLPOP at the head.
type RedisTransport struct {
	rdb *redis.Client
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport connects and validates the connection.
func NewRedisTransport(ctx context.Context, cfg config.RedisConfig) (*RedisTransport, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisTransport{rdb: rdb}, nil
}

// Close releases the connection pool.
func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}

func (t *RedisTransport) PushTail(ctx context.Context, key string, value []byte) error {
	return t.rdb.RPush(ctx, key, value).Err()
}

func (t *RedisTransport) PopHead(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := t.rdb.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

func (t *RedisTransport) Len(ctx context.Context, key string) (int64, error) {
	return t.rdb.LLen(ctx, key).Result()
}

func (t *RedisTransport) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.rdb.Set(ctx, key, value, ttl).Err()
}

func (t *RedisTransport) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := t.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (t *RedisTransport) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return t.rdb.Expire(ctx, key, ttl).Err()
}
