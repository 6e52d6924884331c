package ta

import (
	"math"
	"testing"

	"signal-desk/internal/domain"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%7)
	}
	return out
}

func TestEMASeriesSeedsWithFirstValue(t *testing.T) {
	values := []float64{42, 43, 41, 44}
	for _, span := range []int{2, 21, 200} {
		ema := EMASeries(values, span)
		if ema[0] != 42 {
			t.Fatalf("span %d: expected seed 42, got %f", span, ema[0])
		}
		for i, v := range ema {
			if math.IsNaN(v) {
				t.Fatalf("span %d: NaN at %d", span, i)
			}
		}
	}
	ema := EMASeries([]float64{1, 4}, 2)
	// alpha = 2/3
	if !approx(ema[1], 3) {
		t.Fatalf("expected 3, got %f", ema[1])
	}
}

func TestRSISeriesRollingMean(t *testing.T) {
	rsi := RSISeries([]float64{1, 2, 1, 3}, 2)
	if !math.IsNaN(rsi[0]) || !math.IsNaN(rsi[1]) {
		t.Fatalf("expected leading NaN, got %v", rsi)
	}
	if !approx(rsi[2], 50) {
		t.Fatalf("expected 50, got %f", rsi[2])
	}
	if !approx(rsi[3], 100-100.0/3) {
		t.Fatalf("expected 66.67, got %f", rsi[3])
	}
}

func TestRSISeriesZeroLossIsHundred(t *testing.T) {
	rising := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i)
		flat[i] = 7
	}
	if got := RSISeries(rising, RSIPeriod)[29]; got != 100 {
		t.Fatalf("expected 100 for rising series, got %f", got)
	}
	if got := RSISeries(flat, RSIPeriod)[29]; got != 100 {
		t.Fatalf("expected 100 for flat series, got %f", got)
	}
	if got := RSISeries(flat, RSIPeriod)[RSIPeriod-1]; !math.IsNaN(got) {
		t.Fatalf("expected NaN before the window fills, got %f", got)
	}
}

func TestRSIBounded(t *testing.T) {
	for _, series := range [][]float64{RSISeries(wave(120), RSIPeriod), WilderRSISeries(wave(120), RSIPeriod)} {
		for i, v := range series {
			if math.IsNaN(v) {
				continue
			}
			if v < 0 || v > 100 {
				t.Fatalf("rsi out of bounds at %d: %f", i, v)
			}
		}
		if math.IsNaN(series[len(series)-1]) {
			t.Fatal("expected defined latest rsi")
		}
		if !math.IsNaN(series[RSIPeriod-1]) {
			t.Fatal("expected NaN inside lookback")
		}
	}
}

func TestBollingerOrdering(t *testing.T) {
	middle, upper, lower := BollingerSeries(wave(80), BollPeriod, BollStdDevs)
	for i := range middle {
		if i < BollPeriod-1 {
			if !math.IsNaN(middle[i]) {
				t.Fatalf("expected NaN at %d", i)
			}
			continue
		}
		if !(upper[i] >= middle[i] && middle[i] >= lower[i]) {
			t.Fatalf("band ordering broken at %d: %f %f %f", i, upper[i], middle[i], lower[i])
		}
	}
}

func TestBollingerUsesSampleStdDev(t *testing.T) {
	middle, upper, _ := BollingerSeries([]float64{1, 2, 3}, 3, 1)
	if !approx(middle[2], 2) || !approx(upper[2], 3) {
		t.Fatalf("expected sample std 1, got middle=%f upper=%f", middle[2], upper[2])
	}
}

func TestTrueRangeAndATR(t *testing.T) {
	highs := []float64{10, 12, 11}
	lows := []float64{8, 9, 9}
	closes := []float64{9, 11, 10}
	tr := TrueRangeSeries(highs, lows, closes)
	if tr[0] != 2 || tr[1] != 3 || tr[2] != 2 {
		t.Fatalf("unexpected true range: %v", tr)
	}
	atr := ATRSeries(highs, lows, closes, 2)
	if !math.IsNaN(atr[0]) || !approx(atr[1], 2.5) || !approx(atr[2], 2.5) {
		t.Fatalf("unexpected atr: %v", atr)
	}
}

func TestATRNonNegative(t *testing.T) {
	closes := wave(100)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c + 1.5
		lows[i] = c - 0.5
	}
	for _, series := range [][]float64{ATRSeries(highs, lows, closes, ATRPeriod), WilderATRSeries(highs, lows, closes, ATRPeriod)} {
		for i, v := range series {
			if !math.IsNaN(v) && v < 0 {
				t.Fatalf("negative atr at %d: %f", i, v)
			}
		}
		if last := series[len(series)-1]; math.IsNaN(last) || last <= 0 {
			t.Fatalf("expected positive latest atr, got %f", last)
		}
	}
}

func TestMACDHistogram(t *testing.T) {
	macd, signal, hist := MACDSeries(wave(60), MACDFast, MACDSlow, MACDSignalLen)
	if macd[0] != 0 || signal[0] != 0 || hist[0] != 0 {
		t.Fatalf("expected zero at seed, got %f %f %f", macd[0], signal[0], hist[0])
	}
	for i := range hist {
		if hist[i] != macd[i]-signal[i] {
			t.Fatalf("histogram mismatch at %d", i)
		}
	}
}

func TestComputeConstantSeries(t *testing.T) {
	s := make(domain.Series, 201)
	for i := range s {
		s[i] = domain.Candle{OpenTime: int64(i) * 60000, Open: 100, High: 100, Low: 100, Close: 100, Volume: 10}
	}
	set := Compute(s, SmoothingSimple)
	last := len(s) - 1

	for name, series := range map[string][]float64{
		"ema21": set.EMA21, "ema50": set.EMA50, "ema200": set.EMA200,
		"sma20": set.SMA20, "upper": set.BollingerUpper, "lower": set.BollingerLower,
	} {
		if len(series) != len(s) {
			t.Fatalf("%s: expected aligned length, got %d", name, len(series))
		}
		if !approx(series[last], 100) {
			t.Fatalf("%s: expected 100, got %f", name, series[last])
		}
	}
	if !approx(set.MACD[last], 0) || !approx(set.MACDSignal[last], 0) || !approx(set.MACDHistogram[last], 0) {
		t.Fatalf("expected flat macd, got %f %f %f", set.MACD[last], set.MACDSignal[last], set.MACDHistogram[last])
	}
	if set.RSI14[last] != 100 {
		t.Fatalf("expected rsi 100, got %f", set.RSI14[last])
	}
	if set.ATR14[last] != 0 {
		t.Fatalf("expected atr 0, got %f", set.ATR14[last])
	}
}

func TestComputeDeterministic(t *testing.T) {
	closes := wave(150)
	s := make(domain.Series, len(closes))
	for i, c := range closes {
		s[i] = domain.Candle{OpenTime: int64(i), Open: c - 0.3, High: c + 1, Low: c - 1, Close: c, Volume: 5}
	}
	a := Compute(s, SmoothingSimple)
	b := Compute(s, SmoothingSimple)
	for i := range closes {
		if a.EMA21[i] != b.EMA21[i] || a.ATR14[i] != b.ATR14[i] || a.MACD[i] != b.MACD[i] {
			t.Fatalf("non-deterministic output at %d", i)
		}
		if math.IsNaN(a.RSI14[i]) != math.IsNaN(b.RSI14[i]) || (!math.IsNaN(a.RSI14[i]) && a.RSI14[i] != b.RSI14[i]) {
			t.Fatalf("non-deterministic rsi at %d", i)
		}
	}
}

func TestParseSmoothing(t *testing.T) {
	if s, err := ParseSmoothing(""); err != nil || s != SmoothingSimple {
		t.Fatalf("expected simple default, got %q %v", s, err)
	}
	if s, err := ParseSmoothing(" Wilder "); err != nil || s != SmoothingWilder {
		t.Fatalf("expected wilder, got %q %v", s, err)
	}
	if _, err := ParseSmoothing("hull"); err == nil {
		t.Fatal("expected error for unknown smoothing")
	}
}

func TestMinCandles(t *testing.T) {
	if got := MinCandles(SmoothingSimple); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if got := MinCandles(SmoothingWilder); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
}
