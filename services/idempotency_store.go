package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which order an idempotency key produced
type IdempotencyStore interface {
	// Claim reserves key for a new request. When the key was already used,
	// claimed is false and orderID is the order it produced, or zero while
	// the first request is still running.
	Claim(ctx context.Context, key string) (orderID uint, claimed bool, err error)
	// Complete records the order created for a claimed key
	Complete(ctx context.Context, key string, orderID uint) error
	// Abandon frees a claimed key after a failed request
	Abandon(ctx context.Context, key string) error
}

const (
	idempotencyPrefix  = "idempotency:order:"
	idempotencyPending = "pending"
	// a claim left by a crashed request frees the key after this long
	idempotencyPendingTTL = time.Minute
)

// RedisCommands is the part of redis.Cmdable the store uses
type RedisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisIdempotencyStore keeps keys in Redis with a TTL
type RedisIdempotencyStore struct {
	rdb        RedisCommands
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewRedisClient parses a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return redis.NewClient(opts), nil
}

// NewRedisIdempotencyStore creates a store whose completed keys expire
// after ttl. In-flight claims expire sooner.
func NewRedisIdempotencyStore(rdb RedisCommands, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl, pendingTTL: min(ttl, idempotencyPendingTTL)}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string) (uint, bool, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyPrefix+key, idempotencyPending, s.pendingTTL).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	value, err := s.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; report as in flight
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if value == idempotencyPending {
		return 0, false, nil
	}

	orderID, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency key %q: %w", key, err)
	}
	return uint(orderID), false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, orderID uint) error {
	return s.rdb.Set(ctx, idempotencyPrefix+key, strconv.FormatUint(uint64(orderID), 10), s.ttl).Err()
}

func (s *RedisIdempotencyStore) Abandon(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyPrefix+key).Err()
}
