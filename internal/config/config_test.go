package config

import (
	"testing"

	"signal-desk/internal/ta"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_PORT", "TELEGRAM_BOT_TOKEN", "DATABASE_URL", "REDIS_URL",
		"KLINE_CACHE_TTL_SECS", "ANALYSIS_KLINE_LIMIT", "KLINES_ROUTE_LIMIT",
		"TA_SMOOTHING", "WATCHLIST_SYMBOLS", "WATCHLIST_INTERVAL", "MCP_TRANSPORT",
		"SSH_PORT", "SSH_AUTHORIZED_FINGERPRINTS", "BINANCE_SPOT_URL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.KlineCacheTTLSecs != 15 || cfg.AnalysisKlineLimit != 100 || cfg.KlinesRouteLimit != 1000 {
		t.Fatalf("unexpected kline defaults: %+v", cfg)
	}
	if cfg.TASmoothing != ta.SmoothingSimple {
		t.Fatalf("expected simple smoothing, got %s", cfg.TASmoothing)
	}
	if len(cfg.WatchlistSymbols) != 2 || cfg.WatchlistInterval != "1h" {
		t.Fatalf("unexpected watchlist defaults: %v %s", cfg.WatchlistSymbols, cfg.WatchlistInterval)
	}
	if cfg.MCPTransport != "stdio" || cfg.SSHPort != 2222 {
		t.Fatalf("unexpected transport defaults: %s %d", cfg.MCPTransport, cfg.SSHPort)
	}
	if cfg.BinanceSpotURL != "https://api.binance.com" {
		t.Fatalf("unexpected spot url: %s", cfg.BinanceSpotURL)
	}
	if cfg.SSHAuthorizedFingerprints != nil {
		t.Fatalf("expected no fingerprints, got %v", cfg.SSHAuthorizedFingerprints)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("KLINE_CACHE_TTL_SECS", "30")
	t.Setenv("TA_SMOOTHING", "wilder")
	t.Setenv("WATCHLIST_SYMBOLS", " btcusdt, solusdt ,,")
	t.Setenv("WATCHLIST_INTERVAL", "4h")
	t.Setenv("SSH_AUTHORIZED_FINGERPRINTS", "SHA256:abc,SHA256:def")

	cfg := Load()
	if cfg.TelegramBotToken != "token" || cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.KlineCacheTTLSecs != 30 {
		t.Fatalf("expected ttl 30, got %d", cfg.KlineCacheTTLSecs)
	}
	if cfg.TASmoothing != ta.SmoothingWilder {
		t.Fatalf("expected wilder smoothing, got %s", cfg.TASmoothing)
	}
	if len(cfg.WatchlistSymbols) != 2 || cfg.WatchlistSymbols[0] != "BTCUSDT" || cfg.WatchlistSymbols[1] != "SOLUSDT" {
		t.Fatalf("unexpected watchlist: %v", cfg.WatchlistSymbols)
	}
	if cfg.WatchlistInterval != "4h" {
		t.Fatalf("expected 4h, got %s", cfg.WatchlistInterval)
	}
	if len(cfg.SSHAuthorizedFingerprints) != 2 || cfg.SSHAuthorizedFingerprints[1] != "SHA256:def" {
		t.Fatalf("unexpected fingerprints: %v", cfg.SSHAuthorizedFingerprints)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("KLINE_CACHE_TTL_SECS", "bad")
	t.Setenv("ANALYSIS_KLINE_LIMIT", "-5")
	t.Setenv("TA_SMOOTHING", "hull")
	t.Setenv("WATCHLIST_INTERVAL", "7m")
	t.Setenv("MCP_TRANSPORT", "grpc")

	cfg := Load()
	if cfg.KlineCacheTTLSecs != 15 || cfg.AnalysisKlineLimit != 100 {
		t.Fatalf("invalid ints should fall back to defaults, got %d %d", cfg.KlineCacheTTLSecs, cfg.AnalysisKlineLimit)
	}
	if cfg.TASmoothing != ta.SmoothingSimple {
		t.Fatalf("expected simple fallback, got %s", cfg.TASmoothing)
	}
	if cfg.WatchlistInterval != "1h" {
		t.Fatalf("expected 1h fallback, got %s", cfg.WatchlistInterval)
	}
	if cfg.MCPTransport != "stdio" {
		t.Fatalf("expected stdio fallback, got %s", cfg.MCPTransport)
	}
}
