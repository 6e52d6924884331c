package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"signal-desk/internal/analysis"
	"signal-desk/internal/cache"
	"signal-desk/internal/domain"
	"signal-desk/internal/metrics"
	"signal-desk/internal/series"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KlineFeed supplies raw exchange kline rows.
type KlineFeed interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([][]any, error)
}

// CandleArchive persists fetched candles and serves them back when the feed
// is down.
type CandleArchive interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.ArchivedCandle, error)
	UpsertCandles(ctx context.Context, symbol, interval string, candles domain.Series) error
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type AnalysisOptions struct {
	// AnalysisLimit is the number of klines behind /api/analysis.
	AnalysisLimit int
	// StructureLimit is the number of klines behind patterns, levels and
	// the raw klines route.
	StructureLimit int
	CacheTTL       time.Duration
}

func (o AnalysisOptions) withDefaults() AnalysisOptions {
	if o.AnalysisLimit <= 0 {
		o.AnalysisLimit = 100
	}
	if o.StructureLimit <= 0 {
		o.StructureLimit = 1000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 15 * time.Second
	}
	return o
}

// AnalysisService loads candles for a symbol (cache, then feed, then
// archive) and runs the technical-analysis pipeline over them.
type AnalysisService struct {
	tracer  trace.Tracer
	feed    KlineFeed
	archive CandleArchive
	redis   RedisClient
	synth   *analysis.Synthesizer
	metrics *metrics.Metrics
	opts    AnalysisOptions
}

// NewAnalysisService wires the pipeline. archive and redisClient may be
// nil; a nil metrics registers a private registry.
func NewAnalysisService(
	tracer trace.Tracer,
	feed KlineFeed,
	archive CandleArchive,
	redisClient RedisClient,
	synth *analysis.Synthesizer,
	m *metrics.Metrics,
	opts AnalysisOptions,
) *AnalysisService {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &AnalysisService{
		tracer:  tracer,
		feed:    feed,
		archive: archive,
		redis:   redisClient,
		synth:   synth,
		metrics: m,
		opts:    opts.withDefaults(),
	}
}

// Options reports the limits in effect after defaults are applied.
func (s *AnalysisService) Options() AnalysisOptions { return s.opts }

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeRequest upper-cases the symbol and checks both it and the
// interval.
func NormalizeRequest(symbol, interval string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, symbol)
	}
	interval = strings.TrimSpace(interval)
	if interval == "" {
		interval = "1h"
	}
	if !domain.IsSupportedInterval(interval) {
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnsupportedInterval, interval)
	}
	return symbol, interval, nil
}

// Analyze returns the analysis record and trade suggestion for the latest
// candle of symbol.
func (s *AnalysisService) Analyze(ctx context.Context, symbol, interval string) (result *domain.SymbolAnalysis, err error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.analyze")
	defer span.End()
	defer func() { s.metrics.Outcome("analysis", err) }()

	symbol, interval, err = NormalizeRequest(symbol, interval)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	candles, err := s.Series(ctx, symbol, interval, s.opts.AnalysisLimit)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(s.metrics.AnalysisDur.WithLabelValues("analysis"))
	rec, err := s.synth.ComputeAnalysis(candles)
	if err != nil {
		timer.ObserveDuration()
		return nil, err
	}
	suggestion := analysis.AdviseTrade(rec)
	timer.ObserveDuration()

	s.metrics.Suggestions.WithLabelValues(string(suggestion.Type())).Inc()
	return &domain.SymbolAnalysis{
		Symbol:     symbol,
		Interval:   interval,
		Analysis:   rec,
		Suggestion: suggestion,
	}, nil
}

// Patterns scans the trailing candles of symbol for candlestick patterns.
func (s *AnalysisService) Patterns(ctx context.Context, symbol, interval string) (matches []domain.PatternMatch, err error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.patterns")
	defer span.End()
	defer func() { s.metrics.Outcome("patterns", err) }()

	symbol, interval, err = NormalizeRequest(symbol, interval)
	if err != nil {
		return nil, err
	}

	candles, err := s.Series(ctx, symbol, interval, s.opts.StructureLimit)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(s.metrics.AnalysisDur.WithLabelValues("patterns"))
	matches, failures := analysis.ScanPatterns(candles)
	timer.ObserveDuration()

	for _, f := range failures {
		s.metrics.PatternFailures.WithLabelValues(f.Pattern).Inc()
	}
	span.SetAttributes(attribute.Int("matches", len(matches)), attribute.Int("failures", len(failures)))
	return matches, nil
}

// Levels returns the key support and resistance levels of symbol, using
// the window the interval calls for.
func (s *AnalysisService) Levels(ctx context.Context, symbol, interval string) (levels []domain.KeyLevel, err error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.levels")
	defer span.End()
	defer func() { s.metrics.Outcome("levels", err) }()

	symbol, interval, err = NormalizeRequest(symbol, interval)
	if err != nil {
		return nil, err
	}

	candles, err := s.Series(ctx, symbol, interval, s.opts.StructureLimit)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(s.metrics.AnalysisDur.WithLabelValues("levels"))
	levels = analysis.FindKeyLevels(candles, analysis.LevelPeriod(interval))
	timer.ObserveDuration()
	return levels, nil
}

// Klines returns the formatted klines of symbol. Unlike the analysis
// operations it needs the full exchange row, so there is no archive
// fallback.
func (s *AnalysisService) Klines(ctx context.Context, symbol, interval string) (klines []domain.Kline, err error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.klines")
	defer span.End()
	defer func() { s.metrics.Outcome("klines", err) }()

	symbol, interval, err = NormalizeRequest(symbol, interval)
	if err != nil {
		return nil, err
	}

	rows, err := s.fetchRows(ctx, symbol, interval, s.opts.StructureLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrEmptyInput
	}
	return series.FormatKlines(rows)
}

// Warm fetches the analysis window of symbol so the cache and the archive
// hold it before anyone asks.
func (s *AnalysisService) Warm(ctx context.Context, symbol, interval string) error {
	ctx, span := s.tracer.Start(ctx, "analysis-service.warm")
	defer span.End()

	symbol, interval, err := NormalizeRequest(symbol, interval)
	if err != nil {
		return err
	}
	_, err = s.fetchRows(ctx, symbol, interval, s.opts.AnalysisLimit)
	return err
}

// Series loads limit candles of an already-normalized symbol and interval.
// When the feed is unavailable and the archive holds candles, those are
// served instead.
func (s *AnalysisService) Series(ctx context.Context, symbol, interval string, limit int) (domain.Series, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.series")
	defer span.End()

	rows, err := s.fetchRows(ctx, symbol, interval, limit)
	if err != nil {
		archived, archErr := s.fromArchive(ctx, symbol, interval, limit)
		if archErr != nil {
			log.Warn("archive fallback failed", "symbol", symbol, "interval", interval, "err", archErr)
			return nil, err
		}
		if archived == nil {
			return nil, err
		}
		s.metrics.FeedFallbacks.Inc()
		log.Warn("serving archived candles", "symbol", symbol, "interval", interval, "candles", len(archived), "feed_err", err)
		return archived, nil
	}
	return series.Prepare(rows)
}

// fetchRows reads the kline cache, falling through to the feed on a miss.
// Fresh rows are cached and archived.
func (s *AnalysisService) fetchRows(ctx context.Context, symbol, interval string, limit int) ([][]any, error) {
	key := cache.KlineKey(symbol, interval, limit)
	if s.redis != nil {
		cached, err := s.getRowsCache(ctx, key)
		switch {
		case err != nil:
			s.metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warnf("redis cache read error: %v", err)
		case cached != nil:
			s.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	rows, err := s.feed.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	if s.redis != nil {
		if err := s.setRowsCache(ctx, key, rows); err != nil {
			log.Warnf("redis cache write error for %s: %v", key, err)
		}
	}
	s.archiveRows(ctx, symbol, interval, rows)
	return rows, nil
}

func (s *AnalysisService) archiveRows(ctx context.Context, symbol, interval string, rows [][]any) {
	if s.archive == nil {
		return
	}
	candles, err := series.Prepare(rows)
	if err != nil {
		return
	}
	if err := s.archive.UpsertCandles(ctx, symbol, interval, candles); err != nil {
		log.Warn("archive write failed", "symbol", symbol, "interval", interval, "err", err)
		return
	}
	s.metrics.ArchiveWrites.Inc()
}

func (s *AnalysisService) fromArchive(ctx context.Context, symbol, interval string, limit int) (domain.Series, error) {
	if s.archive == nil {
		return nil, nil
	}
	archived, err := s.archive.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	candles := make([]*domain.Candle, len(archived))
	for i, c := range archived {
		if c != nil {
			candles[i] = &c.Candle
		}
	}
	out, err := series.FromCandles(candles)
	if errors.Is(err, domain.ErrEmptyInput) {
		return nil, nil
	}
	return out, err
}

func (s *AnalysisService) setRowsCache(ctx context.Context, key string, rows [][]any) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, s.opts.CacheTTL).Err()
}

func (s *AnalysisService) getRowsCache(ctx context.Context, key string) ([][]any, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
