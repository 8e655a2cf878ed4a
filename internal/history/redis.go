package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/citypulse/internal/tracing"
)

// DefaultViewRetention is how long idle view counters are kept in Redis.
const DefaultViewRetention = 180 * 24 * time.Hour

// RedisViewStore implements ViewStore with three keys per user: a hash of
// seen counts (HINCRBY), a sorted set of last-shown times in milliseconds (ZADD GT) and a set
// of interacted items. Every write is commutative.
type RedisViewStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisViewStore creates a RedisViewStore.
func NewRedisViewStore(client *redis.Client) *RedisViewStore {
	return &RedisViewStore{client: client, prefix: "citypulse:views", retention: DefaultViewRetention}
}

func (s *RedisViewStore) keys(userID string) (seen, last, interacted string) {
	base := s.prefix + ":" + userID
	return base + ":seen", base + ":last", base + ":interacted"
}

func (s *RedisViewStore) Get(ctx context.Context, userID string, itemIDs []string) (_ map[string]ViewRecord, err error) {
	out := make(map[string]ViewRecord, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	ctx, endSpan := tracing.StartCacheSpan(ctx, "pipeline", s.prefix)
	defer func() { endSpan(err) }()
	seenKey, lastKey, interactedKey := s.keys(userID)

	members := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		members[i] = id
	}

	var (
		seenCmd       *redis.SliceCmd
		lastCmd       *redis.FloatSliceCmd
		interactedCmd *redis.BoolSliceCmd
	)
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		seenCmd = p.HMGet(ctx, seenKey, itemIDs...)
		lastCmd = p.ZMScore(ctx, lastKey, itemIDs...)
		interactedCmd = p.SMIsMember(ctx, interactedKey, members...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read feed views: %w", err)
	}

	seen := seenCmd.Val()
	last := lastCmd.Val()
	interacted := interactedCmd.Val()
	for i, id := range itemIDs {
		v := ViewRecord{UserID: userID, ItemID: id}
		found := false
		if i < len(seen) {
			if raw, ok := seen[i].(string); ok {
				if n, err := strconv.Atoi(raw); err == nil {
					v.SeenCount = n
					found = true
				}
			}
		}
		if i < len(last) && last[i] > 0 {
			t := time.UnixMilli(int64(last[i])).UTC()
			v.LastShownAt = &t
			found = true
		}
		if i < len(interacted) && interacted[i] {
			v.Interacted = true
			found = true
		}
		if found {
			out[id] = v
		}
	}
	return out, nil
}

func (s *RedisViewStore) Increment(ctx context.Context, userID, itemID string, at time.Time) (err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "multi", s.prefix)
	defer func() { endSpan(err) }()

	seenKey, lastKey, _ := s.keys(userID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, seenKey, itemID, 1)
		p.ZAddGT(ctx, lastKey, redis.Z{Score: float64(at.UnixMilli()), Member: itemID})
		p.Expire(ctx, seenKey, s.retention)
		p.Expire(ctx, lastKey, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment feed view: %w", err)
	}
	return nil
}

func (s *RedisViewStore) MarkInteracted(ctx context.Context, userID, itemID string) (err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "multi", s.prefix)
	defer func() { endSpan(err) }()

	_, _, interactedKey := s.keys(userID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, interactedKey, itemID)
		p.Expire(ctx, interactedKey, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark feed view interacted: %w", err)
	}
	return nil
}
