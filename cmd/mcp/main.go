package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-desk/internal/app"
	"signal-desk/internal/cache"
	"signal-desk/internal/config"
	"signal-desk/internal/db"
	"signal-desk/internal/logging"
	"signal-desk/internal/mcpserver"
	"signal-desk/pkg/tracing"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	buildStackFunc    = app.Build
	runStdioFunc      = mcpserver.RunStdio
	startHTTPFunc     = func(srv *http.Server) error { return srv.ListenAndServe() }
	setupSignalNotify = signal.NotifyContext
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	// stdout carries the protocol in stdio mode; logging.Init writes to stderr.
	logging.Init(cfg.LogLevel, "mcp")

	ctx, stop := setupSignalNotify(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)
	defer db.Close()
	initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx, tracing.ServiceName+"-mcp")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Errorf("error shutting down tracer provider: %v", err)
		}
	}()

	st, err := buildStackFunc(ctx, cfg, tracer, db.Pool, cache.Client, prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("failed to build services: %v", err)
	}

	var coverage mcpserver.CoverageReporter
	if st.Candles != nil {
		coverage = st.Candles
	}
	srv := mcpserver.New(tracer, st.Analyses, st.Market, coverage,
		time.Duration(cfg.MCPRequestTimeoutSecs)*time.Second)

	if err := serve(ctx, cfg, srv.MCP()); err != nil {
		log.Fatalf("MCP server stopped: %v", err)
	}
	log.Info("MCP server exited")
}

func serve(ctx context.Context, cfg *config.Config, server *mcp.Server) error {
	if cfg.MCPTransport != "http" {
		return runStdioFunc(ctx, server)
	}

	if cfg.MCPAuthToken == "" {
		log.Warn("MCP_AUTH_TOKEN not set, HTTP transport is unauthenticated")
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort),
		Handler:           mcpserver.HTTPHandler(server, cfg.MCPAuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("MCP server listening", "addr", httpSrv.Addr)
		errCh <- startHTTPFunc(httpSrv)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
