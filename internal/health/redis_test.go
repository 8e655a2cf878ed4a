package health

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisChecker_HealthCheck(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	if err := NewRedisChecker(client).HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() failed: %v", err)
	}
}

func TestRedisChecker_ContextCancellation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRedisChecker(client).HealthCheck(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
