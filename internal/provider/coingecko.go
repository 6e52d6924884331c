package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signal-desk/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
	topCoinsPerPage  = 100
)

// CoinGeckoProvider fetches the market-cap ranking from the CoinGecko free
// API.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewCoinGeckoProvider creates a new provider with built-in rate limiting.
// Rate limited to 8 requests per minute (one token every 7.5 seconds).
func NewCoinGeckoProvider(tracer trace.Tracer, baseURL string) *CoinGeckoProvider {
	if baseURL == "" {
		baseURL = coingeckoBaseURL
	}
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		limiter: NewRateLimiter(8, 7500*time.Millisecond),
	}
}

type coingeckoMarket struct {
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// FetchTopCoins returns the top coins by market cap, priced in USD.
func (p *CoinGeckoProvider) FetchTopCoins(ctx context.Context) ([]domain.MarketCoin, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-top-coins")
	defer span.End()

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", fmt.Sprint(topCoinsPerPage))
	q.Set("page", "1")
	q.Set("sparkline", "false")

	body, err := p.doRequest(ctx, p.baseURL+"/coins/markets?"+q.Encode())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch top coins: %w", err)
	}

	var raw []coingeckoMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse top coins: %w", err)
	}

	coins := make([]domain.MarketCoin, 0, len(raw))
	for _, m := range raw {
		coins = append(coins, domain.MarketCoin{
			Symbol:         strings.ToUpper(m.Symbol),
			Name:           m.Name,
			Price:          deref(m.CurrentPrice),
			PriceChange24h: deref(m.PriceChangePercentage24h),
			MarketCap:      deref(m.MarketCap),
			Volume24h:      deref(m.TotalVolume),
			Image:          m.Image,
		})
	}
	span.SetAttributes(attribute.Int("coins", len(coins)))
	return coins, nil
}

func (p *CoinGeckoProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("coingecko API error %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// deref treats the nulls CoinGecko emits for unlisted metrics as zero.
func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
