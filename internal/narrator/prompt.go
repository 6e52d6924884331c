package narrator

import (
	"fmt"
	"strings"
	"time"

	"signal-desk/internal/domain"
)

const deskPhilosophy = `You are a crypto technical-analysis desk assistant. Your role is to explain the computed indicators, levels and trade setup, NOT to invent signals of your own.

Reading the data:
- Trend comes from the EMA 21/50/200 stack relative to price.
- RSI above 70 is overbought, below 30 is oversold.
- Price outside the Bollinger bands is stretched.
- The trade setup uses ATR for stops (1.5x) and targets (2x, 3x, 4x).

Rules:
- Always reference the specific numbers you were given.
- Never fabricate data. If data is unavailable, say so.
- Point out when indicators disagree with each other.
- Keep responses concise and actionable. Mention the stop when discussing a setup.
- Do not add financial advice disclaimers. The user understands this is informational.`

func BuildSystemPrompt(marketContext string) string {
	var sb strings.Builder
	sb.WriteString(deskPhilosophy)
	sb.WriteString("\n\n--- LIVE TECHNICAL DATA (as of ")
	sb.WriteString(time.Now().UTC().Format(time.RFC822))
	sb.WriteString(") ---\n")
	sb.WriteString(marketContext)
	return sb.String()
}

// FormatAnalysisContext renders analyses and their key levels for the
// prompt. levels is keyed by symbol.
func FormatAnalysisContext(analyses []*domain.SymbolAnalysis, levels map[string][]domain.KeyLevel) string {
	var sb strings.Builder

	for _, a := range analyses {
		rec := a.Analysis
		p := rec.Price.Precision
		ind := rec.Indicators
		fmt.Fprintf(&sb, "\n%s %s: price $%.*f, trend %s\n", a.Symbol, a.Interval, p, rec.Price.Value, rec.Trend)
		fmt.Fprintf(&sb, "  EMA21 %.*f  EMA50 %.*f  EMA200 %.*f\n", p, ind.EMA.EMA21, p, ind.EMA.EMA50, p, ind.EMA.EMA200)
		fmt.Fprintf(&sb, "  RSI %.2f (%s)\n", ind.RSI.Value, ind.RSI.Analysis)
		fmt.Fprintf(&sb, "  Bollinger %.*f / %.*f / %.*f (%s)\n",
			p, ind.BollingerBands.Upper, p, ind.BollingerBands.Middle, p, ind.BollingerBands.Lower, ind.BollingerBands.Analysis)
		fmt.Fprintf(&sb, "  MACD %.*f signal %.*f (%s)\n", p, ind.MACD.MACD, p, ind.MACD.Signal, ind.MACD.Analysis)
		fmt.Fprintf(&sb, "  ATR %.*f\n", p, ind.ATR)
		if len(rec.Patterns) > 0 {
			fmt.Fprintf(&sb, "  Patterns: %s\n", strings.Join(rec.Patterns, ", "))
		}
		sb.WriteString("  Setup: " + FormatSuggestion(a.Suggestion, p) + "\n")

		if lv := levels[a.Symbol]; len(lv) > 0 {
			sb.WriteString("  Key levels:")
			for _, l := range lv {
				fmt.Fprintf(&sb, " %s %.*f (%d touches)", l.Type, p, l.Price, l.Touches)
			}
			sb.WriteString("\n")
		}
	}

	if sb.Len() == 0 {
		return "No technical data currently available."
	}
	return sb.String()
}

// FormatSuggestion renders a trade suggestion on one line.
func FormatSuggestion(s domain.TradeSuggestion, precision int) string {
	switch v := s.(type) {
	case domain.LongSuggestion:
		return formatPosition("LONG", v.Position, precision)
	case domain.ShortSuggestion:
		return formatPosition("SHORT", v.Position, precision)
	case domain.NeutralSuggestion:
		return "NEUTRAL - " + v.Message
	case domain.ErrorSuggestion:
		return "ERROR - " + v.Message
	default:
		return "none"
	}
}

func formatPosition(side string, p domain.Position, precision int) string {
	return fmt.Sprintf("%s entry %.*f stop %.*f targets %.*f/%.*f/%.*f confidence %d%% risk %s",
		side,
		precision, p.Entry,
		precision, p.StopLoss,
		precision, p.Targets[0], precision, p.Targets[1], precision, p.Targets[2],
		p.Confidence, p.Risk,
	)
}
