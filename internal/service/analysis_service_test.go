package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"signal-desk/internal/analysis"
	"signal-desk/internal/cache"
	"signal-desk/internal/domain"
	"signal-desk/internal/metrics"
	"signal-desk/internal/ta"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

// risingRows builds n exchange-shaped kline rows with closes 100, 101, ...
func risingRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		c := 100 + float64(i)
		rows[i] = []any{
			json.Number(fmt.Sprint(int64(i) * 3_600_000)),
			fmt.Sprintf("%.2f", c-0.5),
			fmt.Sprintf("%.2f", c+1),
			fmt.Sprintf("%.2f", c-1),
			fmt.Sprintf("%.2f", c),
			"10.0",
			json.Number(fmt.Sprint(int64(i)*3_600_000 + 3_599_999)),
			"1000.0",
			json.Number("42"),
			"5.0",
			"500.0",
			"0",
		}
	}
	return rows
}

func newTestService(feed KlineFeed, archive CandleArchive, redisClient RedisClient) *AnalysisService {
	return NewAnalysisService(
		testTracer,
		feed,
		archive,
		redisClient,
		analysis.NewSynthesizer(ta.SmoothingSimple),
		metrics.New(prometheus.NewRegistry()),
		AnalysisOptions{AnalysisLimit: 250, StructureLimit: 250, CacheTTL: time.Minute},
	)
}

func TestNormalizeRequest(t *testing.T) {
	t.Parallel()

	symbol, interval, err := NormalizeRequest(" btcusdt ", "")
	if err != nil || symbol != "BTCUSDT" || interval != "1h" {
		t.Fatalf("unexpected result %q %q %v", symbol, interval, err)
	}
	if _, _, err := NormalizeRequest("BTCUSDT", "7m"); !errors.Is(err, domain.ErrUnsupportedInterval) {
		t.Fatalf("expected ErrUnsupportedInterval, got %v", err)
	}
	if _, _, err := NormalizeRequest("btc/usdt", "1h"); !errors.Is(err, domain.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestAnalysisService_AnalyzeFetchesAndCaches(t *testing.T) {
	t.Parallel()

	feed := &mockFeed{rows: risingRows(250)}
	rdb := newFakeRedis()
	archive := &mockArchive{}
	svc := newTestService(feed, archive, rdb)

	got, err := svc.Analyze(context.Background(), "btcusdt", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Symbol != "BTCUSDT" || got.Interval != "1h" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if got.Analysis.Trend != domain.TrendStrongBullish {
		t.Fatalf("expected STRONG_BULLISH, got %s", got.Analysis.Trend)
	}
	if got.Suggestion.Type() != domain.SuggestionLong {
		t.Fatalf("expected LONG, got %s", got.Suggestion.Type())
	}
	if feed.calls != 1 || feed.lastLimit != 250 {
		t.Fatalf("expected one feed call with limit 250, got %d calls limit %d", feed.calls, feed.lastLimit)
	}
	if _, ok := rdb.data[cache.KlineKey("BTCUSDT", "1h", 250)]; !ok {
		t.Fatal("klines not cached")
	}
	if archive.upsertCalls != 1 || len(archive.upserted) != 250 {
		t.Fatalf("expected archive upsert of 250 candles, got %d calls", archive.upsertCalls)
	}

	if _, err := svc.Analyze(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if feed.calls != 1 {
		t.Fatalf("second call should hit the cache, feed calls = %d", feed.calls)
	}
}

func TestAnalysisService_AnalyzeInvalidInterval(t *testing.T) {
	t.Parallel()

	feed := &mockFeed{rows: risingRows(250)}
	svc := newTestService(feed, nil, nil)

	_, err := svc.Analyze(context.Background(), "BTCUSDT", "2m")
	if !domain.IsInputError(err) {
		t.Fatalf("expected input error, got %v", err)
	}
	if feed.calls != 0 {
		t.Fatal("feed should not be called for an invalid interval")
	}
}

func TestAnalysisService_AnalyzeEmptyFeed(t *testing.T) {
	t.Parallel()

	svc := newTestService(&mockFeed{rows: [][]any{}}, nil, nil)
	if _, err := svc.Analyze(context.Background(), "BTCUSDT", "1h"); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestAnalysisService_AnalyzeShortSeries(t *testing.T) {
	t.Parallel()

	svc := newTestService(&mockFeed{rows: risingRows(10)}, nil, nil)
	_, err := svc.Analyze(context.Background(), "BTCUSDT", "1h")
	var iw *domain.InsufficientWindowError
	if !errors.As(err, &iw) {
		t.Fatalf("expected InsufficientWindowError, got %v", err)
	}
}

func TestAnalysisService_FallsBackToArchive(t *testing.T) {
	t.Parallel()

	feedErr := fmt.Errorf("%w: both markets down", domain.ErrFeedUnavailable)
	archive := &mockArchive{}
	for i := 0; i < 250; i++ {
		c := 100 + float64(i)
		archive.stored = append(archive.stored, &domain.ArchivedCandle{
			Symbol: "BTCUSDT", Interval: "1h",
			Candle: domain.Candle{OpenTime: int64(i), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10},
		})
	}
	svc := newTestService(&mockFeed{err: feedErr}, archive, newFakeRedis())

	got, err := svc.Analyze(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("expected archive fallback, got %v", err)
	}
	if got.Analysis.Trend != domain.TrendStrongBullish {
		t.Fatalf("unexpected trend from archive: %s", got.Analysis.Trend)
	}
	if archive.lastGetLimit != 250 {
		t.Fatalf("expected archive limit 250, got %d", archive.lastGetLimit)
	}
}

func TestAnalysisService_ArchiveFallbackSkipsNilRows(t *testing.T) {
	t.Parallel()

	feedErr := fmt.Errorf("%w: both markets down", domain.ErrFeedUnavailable)
	archive := &mockArchive{}
	for i := 0; i < 250; i++ {
		c := 100 + float64(i)
		archive.stored = append(archive.stored, &domain.ArchivedCandle{
			Symbol: "BTCUSDT", Interval: "1h",
			Candle: domain.Candle{OpenTime: int64(i), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10},
		})
		if i%50 == 0 {
			archive.stored = append(archive.stored, nil)
		}
	}
	svc := newTestService(&mockFeed{err: feedErr}, archive, nil)

	got, err := svc.Series(context.Background(), "BTCUSDT", "1h", 250)
	if err != nil {
		t.Fatalf("expected archive fallback, got %v", err)
	}
	if len(got) != 250 || got.Last().Close != 349 {
		t.Fatalf("expected 250 archived candles ending at 349, got %d", len(got))
	}

	onlyNil := &mockArchive{stored: []*domain.ArchivedCandle{nil, nil}}
	svc = newTestService(&mockFeed{err: feedErr}, onlyNil, nil)
	if _, err := svc.Series(context.Background(), "BTCUSDT", "1h", 250); !errors.Is(err, domain.ErrFeedUnavailable) {
		t.Fatalf("expected the feed error when the archive holds nothing usable, got %v", err)
	}
}

func TestAnalysisService_FeedErrorWithoutArchive(t *testing.T) {
	t.Parallel()

	feedErr := fmt.Errorf("%w: both markets down", domain.ErrFeedUnavailable)
	svc := newTestService(&mockFeed{err: feedErr}, &mockArchive{}, nil)

	_, err := svc.Analyze(context.Background(), "BTCUSDT", "1h")
	if !errors.Is(err, domain.ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestAnalysisService_CacheReadErrorFallsThrough(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	rdb.getErr = errors.New("redis down")
	feed := &mockFeed{rows: risingRows(250)}
	svc := newTestService(feed, nil, rdb)

	if _, err := svc.Analyze(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feed.calls != 1 {
		t.Fatalf("expected feed to be called, got %d", feed.calls)
	}
}

func TestAnalysisService_ArchiveWriteErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	archive := &mockArchive{upsertErr: errors.New("pg down")}
	svc := newTestService(&mockFeed{rows: risingRows(250)}, archive, nil)

	if _, err := svc.Analyze(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("archive failures should not fail the request: %v", err)
	}
}

func TestAnalysisService_PatternsAndLevels(t *testing.T) {
	t.Parallel()

	feed := &mockFeed{rows: risingRows(250)}
	svc := newTestService(feed, nil, newFakeRedis())

	patterns, err := svc.Patterns(context.Background(), "ETHUSDT", "4h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patterns == nil {
		t.Fatal("patterns should be an empty slice, not nil")
	}

	levels, err := svc.Levels(context.Background(), "ETHUSDT", "4h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) > 6 {
		t.Fatalf("expected at most 6 levels, got %d", len(levels))
	}
	if feed.calls != 1 {
		t.Fatalf("levels should reuse the cached window, feed calls = %d", feed.calls)
	}
}

func TestAnalysisService_Klines(t *testing.T) {
	t.Parallel()

	svc := newTestService(&mockFeed{rows: risingRows(3)}, nil, nil)

	klines, err := svc.Klines(context.Background(), "BTCUSDT", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(klines) != 3 || klines[2].Close != 102 || klines[2].Trades != 42 {
		t.Fatalf("unexpected klines: %+v", klines)
	}
}

func TestAnalysisService_WarmPopulatesCache(t *testing.T) {
	t.Parallel()

	rdb := newFakeRedis()
	archive := &mockArchive{}
	svc := newTestService(&mockFeed{rows: risingRows(250)}, archive, rdb)

	if err := svc.Warm(context.Background(), "solusdt", "1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rdb.data[cache.KlineKey("SOLUSDT", "1h", 250)]; !ok {
		t.Fatal("warm should populate the cache")
	}
	if archive.upsertCalls != 1 {
		t.Fatalf("warm should archive candles, got %d", archive.upsertCalls)
	}
}

type mockFeed struct {
	rows [][]any
	err  error

	calls     int
	lastLimit int
}

func (m *mockFeed) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([][]any, error) {
	m.calls++
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

type mockArchive struct {
	stored       []*domain.ArchivedCandle
	getErr       error
	lastGetLimit int

	upserted    domain.Series
	upsertErr   error
	upsertCalls int
}

func (m *mockArchive) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.ArchivedCandle, error) {
	m.lastGetLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stored, nil
}

func (m *mockArchive) UpsertCandles(ctx context.Context, symbol, interval string, candles domain.Series) error {
	m.upsertCalls++
	m.upserted = candles
	return m.upsertErr
}

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}
