// Package analysis turns a candle series into an AnalysisRecord, a trade
// suggestion, candlestick pattern matches and support/resistance levels.
package analysis

import (
	"fmt"
	"math"

	"signal-desk/internal/domain"
	"signal-desk/internal/ta"
)

const (
	rsiOverbought = 70
	rsiOversold   = 30
)

const (
	rsiOverboughtText = "Overbought - possible bullish exhaustion"
	rsiOversoldText   = "Oversold - possible bearish exhaustion"
	rsiNeutralText    = "Neutral level"

	bbAboveText  = "Price above the upper band - possible overbought"
	bbBelowText  = "Price below the lower band - possible oversold"
	bbNormalText = "Price within the bands - normal volatility"

	macdBullishText = "MACD above signal - bullish momentum"
	macdBearishText = "MACD below signal - bearish momentum"
)

// Synthesizer builds AnalysisRecords using a fixed RSI/ATR smoothing.
type Synthesizer struct {
	smoothing ta.Smoothing
}

func NewSynthesizer(smoothing ta.Smoothing) *Synthesizer {
	if smoothing == "" {
		smoothing = ta.SmoothingSimple
	}
	return &Synthesizer{smoothing: smoothing}
}

// ComputeAnalysis uses the default (simple rolling mean) smoothing.
func ComputeAnalysis(s domain.Series) (domain.AnalysisRecord, error) {
	return NewSynthesizer(ta.SmoothingSimple).ComputeAnalysis(s)
}

// ComputeAnalysis snapshots the latest position of s. It fails with
// domain.ErrEmptyInput on an empty series and with an
// *domain.InsufficientWindowError when a latest indicator value the record
// depends on is still undefined.
func (sy *Synthesizer) ComputeAnalysis(s domain.Series) (domain.AnalysisRecord, error) {
	if len(s) == 0 {
		return domain.AnalysisRecord{}, domain.ErrEmptyInput
	}

	set := ta.Compute(s, sy.smoothing)
	last := len(s) - 1

	ema21, ema50, ema200 := set.EMA21[last], set.EMA50[last], set.EMA200[last]
	rsi := set.RSI14[last]
	middle, upper, lower := set.SMA20[last], set.BollingerUpper[last], set.BollingerLower[last]
	macd, signal, histogram := set.MACD[last], set.MACDSignal[last], set.MACDHistogram[last]
	atr := set.ATR14[last]

	need := ta.MinCandles(sy.smoothing)
	checks := []struct {
		name  string
		value float64
	}{
		{"rsi14", rsi},
		{"bollinger20", middle},
		{"bollinger20", upper},
		{"bollinger20", lower},
		{"atr14", atr},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) {
			return domain.AnalysisRecord{}, &domain.InsufficientWindowError{Indicator: c.name, Have: len(s), Need: need}
		}
	}

	price := s.Last().Close
	precision := PricePrecision(price)
	trend := ClassifyTrend(price, ema21, ema50, ema200)

	rsiText := ClassifyRSI(rsi)
	bbText := ClassifyBollinger(price, upper, lower)
	macdText := ClassifyMACD(macd, signal)

	rec := domain.AnalysisRecord{
		Trend: trend,
		Price: domain.Price{Value: Round(price, precision), Precision: precision},
		Indicators: domain.Indicators{
			EMA: domain.EMAValues{
				EMA21:  Round(ema21, precision),
				EMA50:  Round(ema50, precision),
				EMA200: Round(ema200, precision),
			},
			RSI: domain.RSIValue{Value: Round(rsi, 2), Analysis: rsiText},
			BollingerBands: domain.BollingerValues{
				Upper:    Round(upper, precision),
				Middle:   Round(middle, precision),
				Lower:    Round(lower, precision),
				Analysis: bbText,
			},
			MACD: domain.MACDValues{
				MACD:      Round(macd, precision),
				Signal:    Round(signal, precision),
				Histogram: Round(histogram, precision),
				Analysis:  macdText,
			},
			ATR: Round(atr, precision),
		},
		Analysis: domain.Narrative{
			Summary:   fmt.Sprintf("Current price ($%.*f) is in a %s trend.", precision, price, trend.Humanize()),
			RSI:       rsiText,
			Bollinger: bbText,
			MACD:      macdText,
		},
		Patterns: LatestPatternNames(s),
	}
	return rec, nil
}

// PricePrecision picks the number of decimals used for every rounded price
// field, based on the magnitude of the latest close.
func PricePrecision(price float64) int {
	switch {
	case price < 0.0001:
		return 8
	case price < 0.01:
		return 6
	case price < 1:
		return 4
	default:
		return 2
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// ClassifyTrend checks the EMA stack in priority order; the first match
// wins and NEUTRAL is the fallback.
func ClassifyTrend(price, ema21, ema50, ema200 float64) domain.Trend {
	switch {
	case price > ema21 && ema21 > ema50 && ema50 > ema200:
		return domain.TrendStrongBullish
	case price > ema21 && ema21 > ema50:
		return domain.TrendBullish
	case price < ema21 && ema21 < ema50 && ema50 < ema200:
		return domain.TrendStrongBearish
	case price < ema21 && ema21 < ema50:
		return domain.TrendBearish
	default:
		return domain.TrendNeutral
	}
}

func ClassifyRSI(rsi float64) string {
	switch {
	case rsi > rsiOverbought:
		return rsiOverboughtText
	case rsi < rsiOversold:
		return rsiOversoldText
	default:
		return rsiNeutralText
	}
}

func ClassifyBollinger(price, upper, lower float64) string {
	switch {
	case price > upper:
		return bbAboveText
	case price < lower:
		return bbBelowText
	default:
		return bbNormalText
	}
}

func ClassifyMACD(macd, signal float64) string {
	if macd > signal {
		return macdBullishText
	}
	return macdBearishText
}
