package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// InitRedis connects the shared client. addr may be host:port or a
// redis:// / rediss:// URL; empty means localhost:6379.
func InitRedis(ctx context.Context, addr string) {
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL: %v", err)
		}
		opts = parsed
	}

	Client = newRedisClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Info("Connected to Redis", "addr", opts.Addr)
}

// KlineKey is the cache key for raw kline rows of one symbol, interval and
// request limit.
func KlineKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("klines:%s:%s:%d", strings.ToUpper(symbol), interval, limit)
}

const (
	TopCoinsKey = "market:top-coins"
	SymbolsKey  = "market:symbols"
)
