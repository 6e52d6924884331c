package service

import (
	"context"
	"encoding/json"
	"time"

	"signal-desk/internal/cache"
	"signal-desk/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	topCoinsCacheTTL = 60 * time.Second
	symbolsCacheTTL  = time.Hour
)

type TopCoinsProvider interface {
	FetchTopCoins(ctx context.Context) ([]domain.MarketCoin, error)
}

type SymbolLister interface {
	Symbols(ctx context.Context) ([]string, error)
}

// MarketService serves the market-wide listings: the top coins by market
// cap and the tradable symbols.
type MarketService struct {
	tracer  trace.Tracer
	coins   TopCoinsProvider
	symbols SymbolLister
	redis   RedisClient
}

func NewMarketService(tracer trace.Tracer, coins TopCoinsProvider, symbols SymbolLister, redisClient RedisClient) *MarketService {
	return &MarketService{tracer: tracer, coins: coins, symbols: symbols, redis: redisClient}
}

func (s *MarketService) TopCoins(ctx context.Context) ([]domain.MarketCoin, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.top-coins")
	defer span.End()

	var cached []domain.MarketCoin
	if s.readCache(ctx, cache.TopCoinsKey, &cached) {
		return cached, nil
	}

	coins, err := s.coins.FetchTopCoins(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, cache.TopCoinsKey, coins, topCoinsCacheTTL)
	return coins, nil
}

func (s *MarketService) Symbols(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.symbols")
	defer span.End()

	var cached []string
	if s.readCache(ctx, cache.SymbolsKey, &cached) {
		return cached, nil
	}

	symbols, err := s.symbols.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, cache.SymbolsKey, symbols, symbolsCacheTTL)
	return symbols, nil
}

func (s *MarketService) readCache(ctx context.Context, key string, dst any) bool {
	if s.redis == nil {
		return false
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Warnf("redis cache read error: %v", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warnf("redis cache decode error for %s: %v", key, err)
		return false
	}
	return true
}

func (s *MarketService) writeCache(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warnf("redis cache write error for %s: %v", key, err)
	}
}
