package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-desk/internal/analysis"
	"signal-desk/internal/domain"
	"signal-desk/internal/narrator"

	"github.com/charmbracelet/log"
	tele "gopkg.in/telebot.v3"
)

const replyTimeout = 30 * time.Second

// Analyzer is the slice of the analysis service the bot needs.
type Analyzer interface {
	Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error)
	Patterns(ctx context.Context, symbol, interval string) ([]domain.PatternMatch, error)
	Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error)
}

type Asker interface {
	Ask(ctx context.Context, chatID int64, question string) (string, error)
}

type HistoryClearer interface {
	ClearHistory(ctx context.Context, chatID int64) error
}

// Deps wires the bot's commands. Asker and History may be nil, which
// disables /ask and /reset.
type Deps struct {
	Analyses Analyzer
	Asker    Asker
	History  HistoryClearer
}

var newBot = tele.NewBot

func StartTelegramBot(token string, deps Deps) {
	if token == "" {
		log.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := newBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/analysis", func(c tele.Context) error {
		return c.Send(withTimeout(func(ctx context.Context) string { return analysisReply(ctx, deps.Analyses, c.Args()) }))
	})
	b.Handle("/levels", func(c tele.Context) error {
		return c.Send(withTimeout(func(ctx context.Context) string { return levelsReply(ctx, deps.Analyses, c.Args()) }))
	})
	b.Handle("/patterns", func(c tele.Context) error {
		return c.Send(withTimeout(func(ctx context.Context) string { return patternsReply(ctx, deps.Analyses, c.Args()) }))
	})
	b.Handle("/ask", func(c tele.Context) error {
		return c.Send(withTimeout(func(ctx context.Context) string { return askReply(ctx, deps.Asker, c.Chat().ID, c.Message().Payload) }))
	})
	b.Handle("/reset", func(c tele.Context) error {
		if deps.History == nil {
			return c.Send("Conversation history is not enabled.")
		}
		if err := deps.History.ClearHistory(context.Background(), c.Chat().ID); err != nil {
			return c.Send("Could not clear history: " + err.Error())
		}
		return c.Send("Conversation history cleared.")
	})

	log.Info("Telegram bot started")
	go b.Start()
}

func withTimeout(fn func(ctx context.Context) string) string {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	return fn(ctx)
}

func parseArgs(args []string) (symbol, interval string, ok bool) {
	if len(args) == 0 {
		return "", "", false
	}
	symbol = strings.ToUpper(args[0])
	interval = "1h"
	if len(args) > 1 {
		interval = args[1]
	}
	return symbol, interval, true
}

func describeError(symbol string, err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return fmt.Sprintf("No klines found for %s.", symbol)
	case domain.IsInputError(err):
		return fmt.Sprintf("Cannot analyze %s: %v", symbol, err)
	case errors.Is(err, domain.ErrFeedUnavailable):
		return "The exchange is unreachable right now, try again shortly."
	default:
		return fmt.Sprintf("Error analyzing %s: %v", symbol, err)
	}
}

func analysisReply(ctx context.Context, svc Analyzer, args []string) string {
	symbol, interval, ok := parseArgs(args)
	if !ok {
		return "Usage: /analysis BTCUSDT [interval]\nIntervals: " + strings.Join(domain.SupportedIntervals, ", ")
	}
	a, err := svc.Analyze(ctx, symbol, interval)
	if err != nil {
		return describeError(symbol, err)
	}
	return FormatAnalysis(a)
}

func levelsReply(ctx context.Context, svc Analyzer, args []string) string {
	symbol, interval, ok := parseArgs(args)
	if !ok {
		return "Usage: /levels BTCUSDT [interval]"
	}
	levels, err := svc.Levels(ctx, symbol, interval)
	if err != nil {
		return describeError(symbol, err)
	}
	return FormatLevels(symbol, interval, levels)
}

func patternsReply(ctx context.Context, svc Analyzer, args []string) string {
	symbol, interval, ok := parseArgs(args)
	if !ok {
		return "Usage: /patterns BTCUSDT [interval]"
	}
	matches, err := svc.Patterns(ctx, symbol, interval)
	if err != nil {
		return describeError(symbol, err)
	}
	return FormatPatterns(symbol, interval, matches)
}

func askReply(ctx context.Context, asker Asker, chatID int64, question string) string {
	if asker == nil {
		return "The assistant is not configured."
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "Usage: /ask how does BTC look?"
	}
	reply, err := asker.Ask(ctx, chatID, question)
	if err != nil {
		return "The assistant is unavailable: " + err.Error()
	}
	return reply
}

// FormatAnalysis renders an analysis as a Telegram message.
func FormatAnalysis(a *domain.SymbolAnalysis) string {
	rec := a.Analysis
	p := rec.Price.Precision
	ind := rec.Indicators

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n%s\n\n", a.Symbol, a.Interval, rec.Analysis.Summary)
	fmt.Fprintf(&sb, "EMA 21/50/200: %.*f / %.*f / %.*f\n", p, ind.EMA.EMA21, p, ind.EMA.EMA50, p, ind.EMA.EMA200)
	fmt.Fprintf(&sb, "RSI: %.2f (%s)\n", ind.RSI.Value, rec.Analysis.RSI)
	fmt.Fprintf(&sb, "Bollinger: %s\n", rec.Analysis.Bollinger)
	fmt.Fprintf(&sb, "MACD: %s\n", rec.Analysis.MACD)
	fmt.Fprintf(&sb, "ATR: %.*f\n", p, ind.ATR)
	if len(rec.Patterns) > 0 {
		fmt.Fprintf(&sb, "Patterns: %s\n", strings.Join(rec.Patterns, ", "))
	}
	sb.WriteString("\n" + narrator.FormatSuggestion(a.Suggestion, p))
	return sb.String()
}

func FormatLevels(symbol, interval string, levels []domain.KeyLevel) string {
	if len(levels) == 0 {
		return fmt.Sprintf("No key levels found for %s %s.", symbol, interval)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s key levels\n", symbol, interval)
	for _, l := range levels {
		p := analysis.PricePrecision(l.Price)
		fmt.Fprintf(&sb, "%-10s %.*f  touches %d\n", l.Type, p, l.Price, l.Touches)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func FormatPatterns(symbol, interval string, matches []domain.PatternMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No candlestick patterns on the last candles of %s %s.", symbol, interval)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s patterns\n", symbol, interval)
	for _, m := range matches {
		ts := time.UnixMilli(m.Time).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(&sb, "%s  %s (%s)\n", ts, m.Name, m.Direction)
	}
	return strings.TrimRight(sb.String(), "\n")
}
