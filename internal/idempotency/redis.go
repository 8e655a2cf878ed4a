package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/citypulse/internal/tracing"
)

const redisKeyPrefix = "citypulse:idempotency:"

// RedisRepository stores records as JSON strings whose TTL is the expiry.
// Store uses SET NX so concurrent retries race safely.
type RedisRepository struct {
	client *redis.Client
	expiry time.Duration
	logger *slog.Logger
}

// NewRedisRepository creates a Redis-backed repository.
func NewRedisRepository(client *redis.Client, expiry time.Duration, logger *slog.Logger) *RedisRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRepository{client: client, expiry: expiry, logger: logger}
}

// Get retrieves a record by key.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	spanCtx, endSpan := tracing.StartCacheSpan(ctx, "get", redisKeyPrefix)
	data, err := r.client.Get(spanCtx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		endSpan(nil)
	} else {
		endSpan(err)
	}
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		r.logger.WarnContext(ctx, "discarding unreadable idempotency record", "key", key, "error", err)
		return nil, ErrKeyNotFound
	}
	return &record, nil
}

// Store saves a record unless the key is already taken.
func (r *RedisRepository) Store(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	spanCtx, endSpan := tracing.StartCacheSpan(ctx, "setnx", redisKeyPrefix)
	ok, err := r.client.SetNX(spanCtx, redisKeyPrefix+record.Key, data, r.expiry).Result()
	endSpan(err)
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}
