package job

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	warmConcurrency   = 4
	topCoinsRefresh   = 5 * time.Minute
	topCoinsStagger   = 10 * time.Second
	defaultWarmPollIn = 60 * time.Second
)

// KlineWarmer prefetches klines for one symbol into the cache and archive.
type KlineWarmer interface {
	Warm(ctx context.Context, symbol, interval string) error
}

// RefreshFunc reloads a cached listing.
type RefreshFunc func(ctx context.Context) error

// WatchlistWarmer keeps the watchlist's klines hot so the first request for
// a watched symbol never waits on the exchange.
type WatchlistWarmer struct {
	tracer       trace.Tracer
	klines       KlineWarmer
	topCoins     RefreshFunc
	symbols      []string
	interval     string
	pollInterval time.Duration
}

// NewWatchlistWarmer builds the job. topCoins may be nil.
func NewWatchlistWarmer(
	tracer trace.Tracer,
	klines KlineWarmer,
	topCoins RefreshFunc,
	symbols []string,
	interval string,
	pollIntervalSecs int,
) *WatchlistWarmer {
	poll := time.Duration(pollIntervalSecs) * time.Second
	if poll <= 0 {
		poll = defaultWarmPollIn
	}
	return &WatchlistWarmer{
		tracer:       tracer,
		klines:       klines,
		topCoins:     topCoins,
		symbols:      append([]string(nil), symbols...),
		interval:     interval,
		pollInterval: poll,
	}
}

// Start launches the polling goroutines. Blocks until ctx is cancelled.
func (w *WatchlistWarmer) Start(ctx context.Context) {
	log.Info("Watchlist warmer starting", "symbols", len(w.symbols), "interval", w.interval, "every", w.pollInterval)

	if len(w.symbols) > 0 {
		go w.pollLoop(ctx, "watchlist-klines", 0, w.pollInterval, w.warmAll)
	}
	if w.topCoins != nil {
		go w.pollLoop(ctx, "top-coins", topCoinsStagger, topCoinsRefresh, w.topCoins)
	}

	<-ctx.Done()
	log.Info("Watchlist warmer stopped")
}

func (w *WatchlistWarmer) pollLoop(ctx context.Context, name string, delay, interval time.Duration, fn func(context.Context) error) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	if err := fn(ctx); err != nil {
		log.Warnf("poller %s initial run error: %v", name, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Warnf("poller %s error: %v", name, err)
			}
		}
	}
}

// warmAll warms every watchlist symbol, a few at a time. One symbol failing
// does not stop the others; the returned error counts the failures.
func (w *WatchlistWarmer) warmAll(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "watchlist-warmer.warm-all")
	defer span.End()

	var g errgroup.Group
	g.SetLimit(warmConcurrency)
	failures := make([]bool, len(w.symbols))

	for i, symbol := range w.symbols {
		g.Go(func() error {
			if err := w.klines.Warm(ctx, symbol, w.interval); err != nil {
				log.Warn("warm failed", "symbol", symbol, "interval", w.interval, "err", err)
				failures[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("symbols", len(w.symbols)), attribute.Int("failed", failed))
	if failed > 0 {
		return &WarmError{Failed: failed, Total: len(w.symbols)}
	}
	return nil
}

type WarmError struct {
	Failed int
	Total  int
}

func (e *WarmError) Error() string {
	return fmt.Sprintf("warm failed for %d of %d symbols", e.Failed, e.Total)
}
