package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-desk/internal/app"
	"signal-desk/internal/bot"
	"signal-desk/internal/cache"
	"signal-desk/internal/config"
	"signal-desk/internal/db"
	"signal-desk/internal/handler"
	"signal-desk/internal/job"
	"signal-desk/internal/logging"
	"signal-desk/pkg/tracing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "signal-desk/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	buildStackFunc         = app.Build
	startWarmerFunc        = func(w *job.WatchlistWarmer, ctx context.Context) { go w.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Signal Desk API
// @version         1.0
// @description     Technical analysis of exchange candles: indicators, trade suggestions, candlestick patterns and key levels.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	logging.Init(cfg.LogLevel, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)
	defer db.Close()
	initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx, tracing.ServiceName)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Errorf("error shutting down tracer provider: %v", err)
		}
	}()

	st, err := buildStackFunc(ctx, cfg, tracer, db.Pool, cache.Client, nil)
	if err != nil {
		log.Fatalf("failed to build services: %v", err)
	}

	// Keep the watchlist warm (background goroutines, stopped by ctx cancel)
	warmer := job.NewWatchlistWarmer(tracer, st.Analyses, st.RefreshTopCoins,
		cfg.WatchlistSymbols, cfg.WatchlistInterval, cfg.WarmPollSecs)
	startWarmerFunc(warmer, ctx)

	// Start Telegram bot
	deps := bot.Deps{Analyses: st.Analyses}
	if st.Narrator != nil {
		deps.Asker = st.Narrator
		if st.Conversations != nil {
			deps.History = st.Conversations
		}
	}
	startTelegramBotFunc(cfg.TelegramBotToken, deps)

	// Create handlers and routes
	h := handler.New(tracer, st.Analyses, st.Market)
	if st.Narrator != nil {
		h.SetCommentator(st.Narrator)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName), handler.RequestMetrics(st.Metrics))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/metrics", gin.WrapH(st.Metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", "err", err)
	}

	log.Info("Server exiting")
}
