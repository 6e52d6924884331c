package ta

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the mean and the sample (n-1) standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMASeries is the simple rolling mean; positions before period-1 are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = stat.Mean(values[i-period+1:i+1], nil)
	}
	return out
}

// RSISeries uses simple rolling means of gains and losses over period
// deltas. The first defined position is index period.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	for i := period; i < len(closes); i++ {
		avgGain := stat.Mean(gains[i-period+1:i+1], nil)
		avgLoss := stat.Mean(losses[i-period+1:i+1], nil)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

// rsiFromAvg pins RSI to 100 when there are no losses in the window,
// including the flat case where gains are zero too.
func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// WilderRSISeries is the TA-Lib RSI (Wilder smoothing). Positions before
// period are NaN.
func WilderRSISeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period < 2 || len(closes) <= period {
		return out
	}
	raw := talib.Rsi(closes, period)
	for i := period; i < len(closes) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, hist
}

// BollingerSeries returns the rolling mean and the bands stdDevs sample
// standard deviations away from it.
func BollingerSeries(values []float64, period int, stdDevs float64) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	middle := nanSeries(len(values))
	upper := nanSeries(len(values))
	lower := nanSeries(len(values))
	if period <= 0 {
		return middle, upper, lower
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean, std := MeanStd(window)
		middle[i] = mean
		upper[i] = mean + stdDevs*std
		lower[i] = mean - stdDevs*std
	}
	return middle, upper, lower
}

// TrueRangeSeries uses high-low alone for the first candle.
func TrueRangeSeries(highs, lows, closes []float64) []float64 {
	n := minLen(highs, lows, closes)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			prev := closes[i-1]
			tr = math.Max(tr, math.Max(math.Abs(highs[i]-prev), math.Abs(lows[i]-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries is the simple rolling mean of the true range.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	return SMASeries(TrueRangeSeries(highs, lows, closes), period)
}

// WilderATRSeries is the TA-Lib ATR. Positions before period are NaN.
func WilderATRSeries(highs, lows, closes []float64, period int) []float64 {
	n := minLen(highs, lows, closes)
	out := nanSeries(n)
	if period < 1 || n <= period {
		return out
	}
	raw := talib.Atr(highs[:n], lows[:n], closes[:n], period)
	for i := period; i < n && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func minLen(a, b, c []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(c) < n {
		n = len(c)
	}
	return n
}
