package ta

import (
	"fmt"
	"strings"

	"signal-desk/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	EMAShort      = 21
	EMAMedium     = 50
	EMALong       = 200
	RSIPeriod     = 14
	BollPeriod    = 20
	BollStdDevs   = 2.0
	MACDFast      = 12
	MACDSlow      = 26
	MACDSignalLen = 9
	ATRPeriod     = 14
)

// Smoothing selects how RSI and ATR average their inputs.
type Smoothing string

const (
	SmoothingSimple Smoothing = "simple"
	SmoothingWilder Smoothing = "wilder"
)

// ParseSmoothing accepts "simple" or "wilder" (case-insensitive); empty
// means simple.
func ParseSmoothing(s string) (Smoothing, error) {
	switch Smoothing(strings.ToLower(strings.TrimSpace(s))) {
	case "", SmoothingSimple:
		return SmoothingSimple, nil
	case SmoothingWilder:
		return SmoothingWilder, nil
	default:
		return "", fmt.Errorf("unknown smoothing %q", s)
	}
}

// IndicatorSet holds every indicator aligned one-to-one with the series it
// was computed from. Positions still inside a lookback window are NaN.
type IndicatorSet struct {
	EMA21          []float64
	EMA50          []float64
	EMA200         []float64
	RSI14          []float64
	SMA20          []float64
	BollingerUpper []float64
	BollingerLower []float64
	MACD           []float64
	MACDSignal     []float64
	MACDHistogram  []float64
	ATR14          []float64
}

// Compute derives the full IndicatorSet. Indicators are independent of one
// another and are computed concurrently over the same read-only inputs.
func Compute(s domain.Series, smoothing Smoothing) IndicatorSet {
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()

	var set IndicatorSet
	var g errgroup.Group

	g.Go(func() error {
		set.EMA21 = EMASeries(closes, EMAShort)
		set.EMA50 = EMASeries(closes, EMAMedium)
		set.EMA200 = EMASeries(closes, EMALong)
		return nil
	})
	g.Go(func() error {
		if smoothing == SmoothingWilder {
			set.RSI14 = WilderRSISeries(closes, RSIPeriod)
		} else {
			set.RSI14 = RSISeries(closes, RSIPeriod)
		}
		return nil
	})
	g.Go(func() error {
		set.SMA20, set.BollingerUpper, set.BollingerLower = BollingerSeries(closes, BollPeriod, BollStdDevs)
		return nil
	})
	g.Go(func() error {
		set.MACD, set.MACDSignal, set.MACDHistogram = MACDSeries(closes, MACDFast, MACDSlow, MACDSignalLen)
		return nil
	})
	g.Go(func() error {
		if smoothing == SmoothingWilder {
			set.ATR14 = WilderATRSeries(highs, lows, closes, ATRPeriod)
		} else {
			set.ATR14 = ATRSeries(highs, lows, closes, ATRPeriod)
		}
		return nil
	})

	_ = g.Wait()
	return set
}

// MinCandles is the shortest series whose latest position has every
// indicator defined under the given smoothing.
func MinCandles(smoothing Smoothing) int {
	need := BollPeriod
	if RSIPeriod+1 > need {
		need = RSIPeriod + 1
	}
	atrNeed := ATRPeriod
	if smoothing == SmoothingWilder {
		atrNeed = ATRPeriod + 1
	}
	if atrNeed > need {
		need = atrNeed
	}
	return need
}
