package item

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

// DefaultCacheTTL bounds how stale a cached candidate set can be.
const DefaultCacheTTL = 5 * time.Minute

// CachedRepository is a read-through Redis cache in front of another
// Repository. Only FetchActive is cached; Redis failures fall through to the
// backing repository.
type CachedRepository struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewCachedRepository wraps next. A ttl of zero uses DefaultCacheTTL.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "citypulse:candidates",
		logger: logger,
	}
}

func (r *CachedRepository) key(cityID string, window *Window) string {
	if window == nil {
		return fmt.Sprintf("%s:%s:all", r.prefix, cityID)
	}
	return fmt.Sprintf("%s:%s:%d:%d", r.prefix, cityID, window.From.Unix(), window.To.Unix())
}

// FetchActive serves from Redis when possible.
func (r *CachedRepository) FetchActive(ctx context.Context, cityID string, window *Window) ([]Candidate, error) {
	key := r.key(cityID, window)

	getCtx, endGet := tracing.StartCacheSpan(ctx, "get", r.prefix)
	raw, err := r.client.Get(getCtx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		endGet(nil)
	} else {
		endGet(err)
	}
	switch {
	case err == nil:
		var cached []Candidate
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		r.logger.Warn("discarding undecodable candidate cache entry",
			slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("candidate cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	items, err := r.next.FetchActive(ctx, cityID, window)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return items, nil
	}
	setCtx, endSet := tracing.StartCacheSpan(ctx, "set", r.prefix)
	err = r.client.Set(setCtx, key, payload, r.ttl).Err()
	endSet(err)
	if err != nil {
		r.logger.Warn("candidate cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
	return items, nil
}

// GetByID is not cached.
func (r *CachedRepository) GetByID(ctx context.Context, id string) (*Candidate, error) {
	return r.next.GetByID(ctx, id)
}

// Upsert writes through. Cached city sets expire on their TTL.
func (r *CachedRepository) Upsert(ctx context.Context, c *Candidate) error {
	return r.next.Upsert(ctx, c)
}
