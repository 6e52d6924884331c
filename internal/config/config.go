package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"signal-desk/internal/domain"
	"signal-desk/internal/ta"
)

type Config struct {
	HTTPPort    string
	APIKey      string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	BinanceSpotURL    string
	BinanceFuturesURL string
	CoinGeckoURL      string

	KlineCacheTTLSecs  int
	AnalysisKlineLimit int
	KlinesRouteLimit   int
	TASmoothing        ta.Smoothing

	WatchlistSymbols  []string
	WatchlistInterval string
	WarmPollSecs      int

	TelegramBotToken string

	MCPTransport          string
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int

	OpenAIAPIKey string
	OpenAIModel  string

	SSHPort                   int
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string
}

func Load() *Config {
	cfg := &Config{
		APIKey:           os.Getenv("API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		MCPAuthToken:     os.Getenv("MCP_AUTH_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	cfg.HTTPPort = strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}

	if cfg.TelegramBotToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, bot will be disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, candle archive will be disabled")
	}
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, commentary will be disabled")
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.BinanceSpotURL = stringOr("BINANCE_SPOT_URL", "https://api.binance.com")
	cfg.BinanceFuturesURL = stringOr("BINANCE_FUTURES_URL", "https://fapi.binance.com")
	cfg.CoinGeckoURL = stringOr("COINGECKO_URL", "https://api.coingecko.com/api/v3")

	cfg.KlineCacheTTLSecs = positiveInt("KLINE_CACHE_TTL_SECS", 15)
	cfg.AnalysisKlineLimit = positiveInt("ANALYSIS_KLINE_LIMIT", 100)
	cfg.KlinesRouteLimit = positiveInt("KLINES_ROUTE_LIMIT", 1000)

	smoothing, err := ta.ParseSmoothing(os.Getenv("TA_SMOOTHING"))
	if err != nil {
		log.Warnf("unsupported TA_SMOOTHING=%q, defaulting to simple", os.Getenv("TA_SMOOTHING"))
		smoothing = ta.SmoothingSimple
	}
	cfg.TASmoothing = smoothing

	cfg.WatchlistSymbols = splitList(os.Getenv("WATCHLIST_SYMBOLS"), strings.ToUpper)
	if len(cfg.WatchlistSymbols) == 0 {
		cfg.WatchlistSymbols = []string{"BTCUSDT", "ETHUSDT"}
	}

	cfg.WatchlistInterval = strings.TrimSpace(os.Getenv("WATCHLIST_INTERVAL"))
	if cfg.WatchlistInterval == "" {
		cfg.WatchlistInterval = "1h"
	}
	if !domain.IsSupportedInterval(cfg.WatchlistInterval) {
		log.Warnf("unsupported WATCHLIST_INTERVAL=%q, defaulting to 1h", cfg.WatchlistInterval)
		cfg.WatchlistInterval = "1h"
	}

	cfg.WarmPollSecs = positiveInt("WARM_POLL_SECS", 60)

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Warnf("unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = stringOr("MCP_HTTP_BIND", "127.0.0.1")
	cfg.MCPHTTPPort = positiveInt("MCP_HTTP_PORT", 8090)
	cfg.MCPRequestTimeoutSecs = positiveInt("MCP_REQUEST_TIMEOUT_SECS", 10)

	cfg.OpenAIModel = stringOr("OPENAI_MODEL", "gpt-4o-mini")

	cfg.SSHPort = positiveInt("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = stringOr("SSH_HOST_KEY_PATH", ".ssh/signal_desk_ed25519")
	cfg.SSHAuthorizedFingerprints = splitList(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS"), nil)

	return cfg
}

func stringOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// positiveInt falls back to def when the variable is unset, unparsable or
// not positive.
func positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warnf("invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func splitList(raw string, normalize func(string) string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if normalize != nil {
			part = normalize(part)
		}
		out = append(out, part)
	}
	return out
}
