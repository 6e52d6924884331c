// Package app assembles the services shared by the HTTP server, the SSH
// terminal and the MCP server.
package app

import (
	"context"
	"time"

	"signal-desk/internal/analysis"
	"signal-desk/internal/config"
	"signal-desk/internal/metrics"
	"signal-desk/internal/narrator"
	"signal-desk/internal/provider"
	"signal-desk/internal/repository"
	"signal-desk/internal/service"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Stack holds the wired services. Candles, Conversations and Narrator are
// nil when their backing store or API key is not configured.
type Stack struct {
	Metrics       *metrics.Metrics
	Candles       *repository.CandleRepository
	Conversations *repository.ConversationRepository
	Analyses      *service.AnalysisService
	Market        *service.MarketService
	Narrator      *narrator.Narrator
}

var newOpenAIClientFunc = narrator.NewOpenAIClient

// Build wires the stack. pool and redisClient may be nil; reg nil means the
// default Prometheus registry.
func Build(ctx context.Context, cfg *config.Config, tracer trace.Tracer, pool *pgxpool.Pool, redisClient *redis.Client, reg prometheus.Registerer) (*Stack, error) {
	st := &Stack{Metrics: metrics.New(reg)}

	var archive service.CandleArchive
	if pool != nil {
		st.Candles = repository.NewCandleRepository(pool, tracer)
		if err := st.Candles.RunMigrations(ctx); err != nil {
			return nil, err
		}
		st.Conversations = repository.NewConversationRepository(pool, tracer)
		archive = st.Candles
	}

	var rc service.RedisClient
	if redisClient != nil {
		rc = redisClient
	}

	spot := provider.NewBinanceClient(tracer, provider.MarketSpot, cfg.BinanceSpotURL)
	futures := provider.NewBinanceClient(tracer, provider.MarketFutures, cfg.BinanceFuturesURL)
	binance := provider.NewBinanceProvider(tracer, spot, futures)
	gecko := provider.NewCoinGeckoProvider(tracer, cfg.CoinGeckoURL)

	st.Analyses = service.NewAnalysisService(
		tracer, binance, archive, rc,
		analysis.NewSynthesizer(cfg.TASmoothing),
		st.Metrics,
		service.AnalysisOptions{
			AnalysisLimit:  cfg.AnalysisKlineLimit,
			StructureLimit: cfg.KlinesRouteLimit,
			CacheTTL:       time.Duration(cfg.KlineCacheTTLSecs) * time.Second,
		},
	)
	st.Market = service.NewMarketService(tracer, gecko, binance, rc)

	opts := st.Analyses.Options()
	log.Info("analysis service ready",
		"analysis_limit", opts.AnalysisLimit,
		"structure_limit", opts.StructureLimit,
		"cache_ttl", opts.CacheTTL,
		"archive", archive != nil,
		"cache", rc != nil,
	)

	if cfg.OpenAIAPIKey != "" {
		var store narrator.ConversationStore
		if st.Conversations != nil {
			store = st.Conversations
		}
		st.Narrator = narrator.New(tracer, newOpenAIClientFunc(cfg.OpenAIAPIKey), st.Analyses, store, cfg.OpenAIModel, 0)
		log.Info("commentary enabled", "model", cfg.OpenAIModel)
	}
	return st, nil
}

// RefreshTopCoins adapts MarketService.TopCoins to a warmer refresh.
func (st *Stack) RefreshTopCoins(ctx context.Context) error {
	_, err := st.Market.TopCoins(ctx)
	return err
}
