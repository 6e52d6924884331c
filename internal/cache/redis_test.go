package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func stubRedis(t *testing.T) *string {
	t.Helper()
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
		Client = nil
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return nil
	}
	return &capturedAddr
}

func TestInitRedisWithCustomAddr(t *testing.T) {
	addr := stubRedis(t)

	InitRedis(context.Background(), "redis:9999")
	if *addr != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", *addr)
	}
}

func TestInitRedisDefaults(t *testing.T) {
	addr := stubRedis(t)

	InitRedis(context.Background(), "")
	if *addr != "localhost:6379" {
		t.Fatalf("expected default addr, got %s", *addr)
	}
}

func TestInitRedisParsesURL(t *testing.T) {
	addr := stubRedis(t)

	InitRedis(context.Background(), "redis://user:pw@cache.internal:6380/2")
	if *addr != "cache.internal:6380" {
		t.Fatalf("expected parsed addr, got %s", *addr)
	}
	if Client.Options().DB != 2 {
		t.Fatalf("expected db 2, got %d", Client.Options().DB)
	}
}

func TestKlineKey(t *testing.T) {
	t.Parallel()

	if got := KlineKey("btcusdt", "1h", 100); got != "klines:BTCUSDT:1h:100" {
		t.Fatalf("unexpected key %s", got)
	}
}
