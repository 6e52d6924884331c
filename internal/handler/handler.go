package handler

import (
	"context"

	"signal-desk/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Analyzer runs the technical-analysis pipeline for one symbol.
type Analyzer interface {
	Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error)
	Patterns(ctx context.Context, symbol, interval string) ([]domain.PatternMatch, error)
	Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error)
	Klines(ctx context.Context, symbol, interval string) ([]domain.Kline, error)
}

type MarketLister interface {
	TopCoins(ctx context.Context) ([]domain.MarketCoin, error)
	Symbols(ctx context.Context) ([]string, error)
}

type Commentator interface {
	Commentary(ctx context.Context, symbol, interval string) (string, error)
}

type Handler struct {
	tracer   trace.Tracer
	analyses Analyzer
	market   MarketLister
	narrator Commentator
}

func New(tracer trace.Tracer, analyses Analyzer, market MarketLister) *Handler {
	return &Handler{
		tracer:   tracer,
		analyses: analyses,
		market:   market,
	}
}

// SetCommentator enables the LLM commentary route.
func (h *Handler) SetCommentator(n Commentator) {
	h.narrator = n
}

// RegisterRoutes mounts every route. apiKey guards the /api group; empty
// disables the check.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/symbols", h.GetSymbols)
	r.GET("/klines/:symbol/:interval", h.GetKlines)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/analysis/:symbol", h.GetAnalysis)
	api.GET("/analysis/:symbol/commentary", h.GetCommentary)
	api.GET("/patterns/:symbol", h.GetPatterns)
	api.GET("/levels/:symbol", h.GetLevels)
	api.GET("/top-cryptos", h.GetTopCryptos)
}
