package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"signal-desk/internal/domain"
)

const (
	binanceSpotBaseURL    = "https://api.binance.com"
	binanceFuturesBaseURL = "https://fapi.binance.com"

	// Binance meters REST calls by weight; both markets allow a few thousand
	// per minute. The bucket stays well under that.
	binanceBucketSize   = 1200
	binanceRefillPeriod = 50 * time.Millisecond
)

// Market distinguishes the two Binance REST APIs serving klines.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// BinanceClient talks to one Binance market (spot or USDⓈ-M futures).
type BinanceClient struct {
	market  Market
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewBinanceClient(tracer trace.Tracer, market Market, baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = binanceSpotBaseURL
		if market == MarketFutures {
			baseURL = binanceFuturesBaseURL
		}
	}
	return &BinanceClient{
		market:  market,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		limiter: NewRateLimiter(binanceBucketSize, binanceRefillPeriod),
	}
}

func (c *BinanceClient) Market() Market { return c.market }

func (c *BinanceClient) klinesPath() string {
	if c.market == MarketFutures {
		return "/fapi/v1/klines"
	}
	return "/api/v3/klines"
}

func (c *BinanceClient) exchangeInfoPath() string {
	if c.market == MarketFutures {
		return "/fapi/v1/exchangeInfo"
	}
	return "/api/v3/exchangeInfo"
}

// klineWeight mirrors the request weight Binance charges per limit bracket.
func klineWeight(limit int) int {
	switch {
	case limit < 100:
		return 1
	case limit < 500:
		return 2
	case limit <= 1000:
		return 5
	default:
		return 10
	}
}

// FetchKlines returns raw kline rows. Numbers are decoded as json.Number so
// price strings and integer timestamps keep their exact text.
func (c *BinanceClient) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([][]any, error) {
	ctx, span := c.tracer.Start(ctx, "binance.fetch-klines")
	defer span.End()
	span.SetAttributes(
		attribute.String("market", string(c.market)),
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
		attribute.Int("limit", limit),
	)

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	body, err := c.doRequest(ctx, c.klinesPath()+"?"+q.Encode(), klineWeight(limit))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s klines for %s: %w", c.market, symbol, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("parse %s klines for %s: %w", c.market, symbol, err)
	}
	return rows, nil
}

// TradingSymbols lists every symbol whose status is TRADING.
func (c *BinanceClient) TradingSymbols(ctx context.Context) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "binance.trading-symbols")
	defer span.End()

	body, err := c.doRequest(ctx, c.exchangeInfoPath(), 1)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s exchange info: %w", c.market, err)
	}

	var info struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse %s exchange info: %w", c.market, err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

func (c *BinanceClient) doRequest(ctx context.Context, path string, weight int) ([]byte, error) {
	if err := c.limiter.WaitN(ctx, weight); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance %s API error %d: %s", c.market, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// BinanceProvider routes kline requests to the futures or spot market and
// falls back to the other market when the first one fails.
type BinanceProvider struct {
	tracer  trace.Tracer
	spot    *BinanceClient
	futures *BinanceClient
}

func NewBinanceProvider(tracer trace.Tracer, spot, futures *BinanceClient) *BinanceProvider {
	return &BinanceProvider{tracer: tracer, spot: spot, futures: futures}
}

// IsFuturesSymbol reports whether symbol is quoted in a perpetual-futures
// stablecoin (USDT or BUSD).
func IsFuturesSymbol(symbol string) bool {
	return strings.HasSuffix(symbol, "USDT") || strings.HasSuffix(symbol, "BUSD")
}

// FetchKlines tries the preferred market first. When both markets fail the
// error wraps domain.ErrFeedUnavailable.
func (p *BinanceProvider) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([][]any, error) {
	ctx, span := p.tracer.Start(ctx, "binance-provider.fetch-klines")
	defer span.End()

	first, second := p.spot, p.futures
	if IsFuturesSymbol(symbol) {
		first, second = p.futures, p.spot
	}

	rows, err := first.FetchKlines(ctx, symbol, interval, limit)
	if err == nil {
		return rows, nil
	}
	log.Warn("kline fetch failed, trying other market", "symbol", symbol, "market", first.Market(), "err", err)

	rows, err2 := second.FetchKlines(ctx, symbol, interval, limit)
	if err2 == nil {
		return rows, nil
	}
	span.RecordError(err2)
	return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, errors.Join(err, err2))
}

// Symbols lists the futures symbols currently trading.
func (p *BinanceProvider) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := p.futures.TradingSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	return symbols, nil
}
