// Package mcpserver exposes the analysis pipeline as Model Context Protocol
// tools.
package mcpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"signal-desk/internal/domain"
	"signal-desk/internal/repository"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	serverName    = "signal-desk"
	serverVersion = "0.3.0"
)

type Analyzer interface {
	Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error)
	Patterns(ctx context.Context, symbol, interval string) ([]domain.PatternMatch, error)
	Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error)
}

type TopCoinsLister interface {
	TopCoins(ctx context.Context) ([]domain.MarketCoin, error)
}

type CoverageReporter interface {
	Coverage(ctx context.Context) ([]repository.ArchiveCoverage, error)
}

type SymbolInput struct {
	Symbol   string `json:"symbol" jsonschema:"trading pair such as BTCUSDT"`
	Interval string `json:"interval,omitempty" jsonschema:"kline interval such as 15m, 1h or 1d; defaults to 1h"`
}

// SuggestionView flattens the trade suggestion variants into one schema.
type SuggestionView struct {
	Type       string    `json:"type"`
	Message    string    `json:"message,omitempty"`
	Entry      float64   `json:"entry,omitempty"`
	StopLoss   float64   `json:"stopLoss,omitempty"`
	Targets    []float64 `json:"targets,omitempty"`
	Confidence int       `json:"confidence"`
	Risk       string    `json:"risk"`
}

type AnalysisOutput struct {
	Symbol     string                `json:"symbol"`
	Interval   string                `json:"interval"`
	Analysis   domain.AnalysisRecord `json:"analysis"`
	Suggestion SuggestionView        `json:"suggestion"`
}

type PatternsOutput struct {
	Symbol   string                `json:"symbol"`
	Interval string                `json:"interval"`
	Patterns []domain.PatternMatch `json:"patterns"`
}

type LevelsOutput struct {
	Symbol   string            `json:"symbol"`
	Interval string            `json:"interval"`
	Levels   []domain.KeyLevel `json:"levels"`
}

type TopCoinsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of coins to return; defaults to 20"`
}

type TopCoinsOutput struct {
	Coins []domain.MarketCoin `json:"coins"`
}

type CoverageOutput struct {
	Series []repository.ArchiveCoverage `json:"series"`
}

// Server holds the collaborators behind the MCP tools. market and archive
// may be nil; their tools are then not registered.
type Server struct {
	tracer   trace.Tracer
	analyses Analyzer
	market   TopCoinsLister
	archive  CoverageReporter
	timeout  time.Duration
}

func New(tracer trace.Tracer, analyses Analyzer, market TopCoinsLister, archive CoverageReporter, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{tracer: tracer, analyses: analyses, market: market, archive: archive, timeout: timeout}
}

// MCP builds an MCP server with every available tool registered.
func (s *Server) MCP() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_analysis",
		Description: "Technical analysis of the latest candle: EMA trend, RSI, Bollinger bands, MACD, ATR and a trade suggestion",
	}, s.getAnalysis)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_patterns",
		Description: "Candlestick patterns found on the last three candles",
	}, s.getPatterns)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_levels",
		Description: "Up to six support and resistance levels ranked by touches",
	}, s.getLevels)
	if s.market != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_top_cryptos",
			Description: "Top coins by market capitalisation, priced in USD",
		}, s.getTopCryptos)
	}
	if s.archive != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "archive_coverage",
			Description: "Symbols and intervals held in the kline archive with their time range",
		}, s.archiveCoverage)
	}
	return server
}

func (s *Server) getAnalysis(ctx context.Context, _ *mcp.CallToolRequest, in SymbolInput) (*mcp.CallToolResult, AnalysisOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "mcp.get-analysis")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", in.Symbol))

	a, err := s.analyses.Analyze(ctx, in.Symbol, in.Interval)
	if err != nil {
		return nil, AnalysisOutput{}, err
	}
	return nil, AnalysisOutput{
		Symbol:     a.Symbol,
		Interval:   a.Interval,
		Analysis:   a.Analysis,
		Suggestion: ViewSuggestion(a.Suggestion),
	}, nil
}

func (s *Server) getPatterns(ctx context.Context, _ *mcp.CallToolRequest, in SymbolInput) (*mcp.CallToolResult, PatternsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "mcp.get-patterns")
	defer span.End()

	matches, err := s.analyses.Patterns(ctx, in.Symbol, in.Interval)
	if err != nil {
		return nil, PatternsOutput{}, err
	}
	return nil, PatternsOutput{Symbol: strings.ToUpper(in.Symbol), Interval: intervalOrDefault(in.Interval), Patterns: matches}, nil
}

func (s *Server) getLevels(ctx context.Context, _ *mcp.CallToolRequest, in SymbolInput) (*mcp.CallToolResult, LevelsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "mcp.get-levels")
	defer span.End()

	levels, err := s.analyses.Levels(ctx, in.Symbol, in.Interval)
	if err != nil {
		return nil, LevelsOutput{}, err
	}
	return nil, LevelsOutput{Symbol: strings.ToUpper(in.Symbol), Interval: intervalOrDefault(in.Interval), Levels: levels}, nil
}

func (s *Server) getTopCryptos(ctx context.Context, _ *mcp.CallToolRequest, in TopCoinsInput) (*mcp.CallToolResult, TopCoinsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "mcp.get-top-cryptos")
	defer span.End()

	coins, err := s.market.TopCoins(ctx)
	if err != nil {
		return nil, TopCoinsOutput{}, fmt.Errorf("top cryptocurrencies unavailable: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(coins) > limit {
		coins = coins[:limit]
	}
	return nil, TopCoinsOutput{Coins: coins}, nil
}

func (s *Server) archiveCoverage(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, CoverageOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "mcp.archive-coverage")
	defer span.End()

	series, err := s.archive.Coverage(ctx)
	if err != nil {
		return nil, CoverageOutput{}, err
	}
	return nil, CoverageOutput{Series: series}, nil
}

func intervalOrDefault(interval string) string {
	if interval == "" {
		return "1h"
	}
	return interval
}

// ViewSuggestion converts a trade suggestion to its flat wire form.
func ViewSuggestion(s domain.TradeSuggestion) SuggestionView {
	switch v := s.(type) {
	case domain.LongSuggestion:
		return positionView(domain.SuggestionLong, v.Position)
	case domain.ShortSuggestion:
		return positionView(domain.SuggestionShort, v.Position)
	case domain.NeutralSuggestion:
		return SuggestionView{Type: string(domain.SuggestionNeutral), Message: v.Message, Risk: domain.RiskNotApplicable}
	case domain.ErrorSuggestion:
		return SuggestionView{Type: string(domain.SuggestionError), Message: v.Message, Risk: domain.RiskNotApplicable}
	default:
		return SuggestionView{Type: string(domain.SuggestionError), Message: "no suggestion", Risk: domain.RiskNotApplicable}
	}
}

func positionView(t domain.SuggestionType, p domain.Position) SuggestionView {
	return SuggestionView{
		Type:       string(t),
		Entry:      p.Entry,
		StopLoss:   p.StopLoss,
		Targets:    p.Targets[:],
		Confidence: p.Confidence,
		Risk:       p.Risk,
	}
}

// RunStdio serves MCP over stdin/stdout until ctx is cancelled or the
// client disconnects.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	log.Info("MCP server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves MCP over streamable HTTP. A non-empty token requires
// "Authorization: Bearer <token>".
func HTTPHandler(server *mcp.Server, token string) http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			http.Error(w, `{"error":"invalid MCP token"}`, http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}
