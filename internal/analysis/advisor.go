package analysis

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"signal-desk/internal/domain"
)

const (
	stopATRMultiple = 1.5
	riskModerate    = "Moderate"

	confidenceHigh = 75
	confidenceLow  = 60

	neutralMessage = "No clear trading signal at this time"
	errorMessage   = "Error generating trading suggestion"

	maxPrecision = 12
)

var targetATRMultiples = [3]float64{2, 3, 4}

// SuggestionDerivationError describes an AnalysisRecord the advisor could
// not turn into a position. It never leaves AdviseTrade.
type SuggestionDerivationError struct {
	Reason string
}

func (e *SuggestionDerivationError) Error() string {
	return "derive trade suggestion: " + e.Reason
}

// AdviseTrade maps an AnalysisRecord to a trade suggestion. It never fails:
// a record it cannot interpret yields an ErrorSuggestion.
func AdviseTrade(rec domain.AnalysisRecord) (suggestion domain.TradeSuggestion) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("trade advisor panicked", "trend", rec.Trend, "panic", r)
			suggestion = domain.ErrorSuggestion{Message: errorMessage}
		}
	}()

	s, err := deriveSuggestion(rec)
	if err != nil {
		log.Warn("trade advisor rejected record", "trend", rec.Trend, "err", err)
		return domain.ErrorSuggestion{Message: errorMessage}
	}
	return s
}

func deriveSuggestion(rec domain.AnalysisRecord) (domain.TradeSuggestion, error) {
	switch rec.Trend {
	case domain.TrendNeutral:
		return domain.NeutralSuggestion{Message: neutralMessage}, nil
	case domain.TrendBullish, domain.TrendStrongBullish:
		pos, err := position(rec, 1)
		if err != nil {
			return nil, err
		}
		pos.Confidence = confidenceLow
		if rec.Indicators.RSI.Value < rsiOverbought {
			pos.Confidence = confidenceHigh
		}
		return domain.LongSuggestion{Position: pos}, nil
	case domain.TrendBearish, domain.TrendStrongBearish:
		pos, err := position(rec, -1)
		if err != nil {
			return nil, err
		}
		pos.Confidence = confidenceLow
		if rec.Indicators.RSI.Value > rsiOversold {
			pos.Confidence = confidenceHigh
		}
		return domain.ShortSuggestion{Position: pos}, nil
	default:
		return nil, &SuggestionDerivationError{Reason: fmt.Sprintf("unknown trend %q", rec.Trend)}
	}
}

// position lays out entry, stop and targets; dir is +1 for long, -1 for
// short.
func position(rec domain.AnalysisRecord, dir float64) (domain.Position, error) {
	price := rec.Price.Value
	atr := rec.Indicators.ATR
	precision := rec.Price.Precision

	switch {
	case math.IsNaN(price) || math.IsInf(price, 0):
		return domain.Position{}, &SuggestionDerivationError{Reason: "price is not finite"}
	case math.IsNaN(atr) || math.IsInf(atr, 0):
		return domain.Position{}, &SuggestionDerivationError{Reason: "atr is not finite"}
	case atr <= 0:
		return domain.Position{}, &SuggestionDerivationError{Reason: "atr must be positive for a directional position"}
	case precision < 0 || precision > maxPrecision:
		return domain.Position{}, &SuggestionDerivationError{Reason: fmt.Sprintf("precision %d out of range", precision)}
	}

	pos := domain.Position{
		Entry:    Round(price, precision),
		StopLoss: Round(price-dir*stopATRMultiple*atr, precision),
		Risk:     riskModerate,
	}
	for i, m := range targetATRMultiples {
		pos.Targets[i] = Round(price+dir*m*atr, precision)
	}
	return pos, nil
}
