package analysis

import (
	"testing"

	"signal-desk/internal/domain"
)

// base returns n small alternating candles around 100 with unit bodies.
func base(n int) domain.Series {
	s := make(domain.Series, n)
	for i := range s {
		c := domain.Candle{OpenTime: int64(i) * 60000, Open: 100, Close: 101, High: 101.5, Low: 99.5, Volume: 10}
		if i%2 == 1 {
			c.Open, c.Close = 101, 100
		}
		s[i] = c
	}
	return s
}

func withTail(s domain.Series, tail ...domain.Candle) domain.Series {
	for i := range tail {
		tail[i].OpenTime = int64(len(s)+i) * 60000
		tail[i].Volume = 10
	}
	return append(s, tail...)
}

func hasMatch(matches []domain.PatternMatch, name string, dir domain.PatternDirection, time int64) bool {
	for _, m := range matches {
		if m.Name == name && m.Direction == dir && m.Time == time {
			return true
		}
	}
	return false
}

func TestDetectPatterns_BullishEngulfing(t *testing.T) {
	t.Parallel()

	s := withTail(base(12),
		domain.Candle{Open: 105, Close: 100, High: 106, Low: 99},
		domain.Candle{Open: 99.5, Close: 106, High: 107, Low: 99},
	)
	matches := DetectPatterns(s)
	last := s.Last()
	if !hasMatch(matches, "Engulfing", domain.DirectionBullish, last.OpenTime) {
		t.Fatalf("expected bullish engulfing, got %+v", matches)
	}
	for _, m := range matches {
		if m.Strength != 100 {
			t.Fatalf("expected strength 100, got %d", m.Strength)
		}
	}

	names := LatestPatternNames(s)
	found := false
	for _, n := range names {
		if n == "Bullish Engulfing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Bullish Engulfing in %v", names)
	}
}

func TestDetectPatterns_HammerAndDoji(t *testing.T) {
	t.Parallel()

	s := withTail(base(12),
		domain.Candle{Open: 100, Close: 100.05, High: 101, Low: 99},
		domain.Candle{Open: 100, Close: 100.5, High: 100.55, Low: 97},
	)
	matches := DetectPatterns(s)
	if !hasMatch(matches, "Doji", domain.DirectionBullish, s[len(s)-2].OpenTime) {
		t.Fatalf("expected doji, got %+v", matches)
	}
	if !hasMatch(matches, "Hammer", domain.DirectionBullish, s.Last().OpenTime) {
		t.Fatalf("expected hammer, got %+v", matches)
	}
}

func TestDetectPatterns_MorningStar(t *testing.T) {
	t.Parallel()

	s := withTail(base(12),
		domain.Candle{Open: 110, Close: 100, High: 110.5, Low: 99.5},
		domain.Candle{Open: 99, Close: 98.5, High: 99.2, Low: 98},
		domain.Candle{Open: 99, Close: 106, High: 106.5, Low: 98.8},
	)
	if !hasMatch(DetectPatterns(s), "Morning Star", domain.DirectionBullish, s.Last().OpenTime) {
		t.Fatalf("expected morning star, got %+v", DetectPatterns(s))
	}
}

func TestDetectPatterns_ThreeBlackCrows(t *testing.T) {
	t.Parallel()

	s := withTail(base(12),
		domain.Candle{Open: 110, Close: 105, High: 110.2, Low: 104.8},
		domain.Candle{Open: 106, Close: 101, High: 106.1, Low: 100.8},
		domain.Candle{Open: 102, Close: 97, High: 102.1, Low: 96.8},
	)
	if !hasMatch(DetectPatterns(s), "Three Black Crows", domain.DirectionBearish, s.Last().OpenTime) {
		t.Fatalf("expected three black crows, got %+v", DetectPatterns(s))
	}
}

func TestDetectPatterns_OnlyTrailingWindow(t *testing.T) {
	t.Parallel()

	s := withTail(domain.Series{},
		domain.Candle{Open: 105, Close: 100, High: 106, Low: 99},
		domain.Candle{Open: 99.5, Close: 106, High: 107, Low: 99},
	)
	s = withTail(s, base(6)...)

	allowed := map[int64]bool{}
	for _, c := range s[len(s)-patternWindow:] {
		allowed[c.OpenTime] = true
	}
	for _, m := range DetectPatterns(s) {
		if !allowed[m.Time] {
			t.Fatalf("match outside trailing window: %+v", m)
		}
	}
}

func TestDetectPatterns_ShortSeries(t *testing.T) {
	t.Parallel()

	s := domain.Series{{OpenTime: 1, Open: 100, Close: 100, High: 101, Low: 99}}
	matches := DetectPatterns(s)
	if !hasMatch(matches, "Doji", domain.DirectionBullish, 1) {
		t.Fatalf("expected doji on a single candle, got %+v", matches)
	}
	if got := DetectPatterns(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestDetectPatterns_IsolatesFailingDetector(t *testing.T) {
	orig := catalog
	catalog = []detector{
		{"Broken", func(domain.Series, int) int { panic("boom") }},
		{"Doji", doji},
	}
	t.Cleanup(func() { catalog = orig })

	s := domain.Series{{OpenTime: 7, Open: 100, Close: 100, High: 101, Low: 99}}
	matches := DetectPatterns(s)
	if len(matches) != 1 || matches[0].Name != "Doji" {
		t.Fatalf("expected only the doji match, got %+v", matches)
	}
}

func TestScanPatterns_ReportsFailures(t *testing.T) {
	orig := catalog
	catalog = []detector{
		{"Broken", func(domain.Series, int) int { panic("boom") }},
	}
	t.Cleanup(func() { catalog = orig })

	s := domain.Series{{OpenTime: 7, Open: 100, Close: 100, High: 101, Low: 99}}
	matches, failures := ScanPatterns(s)
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
	if len(failures) != 1 || failures[0].Pattern != "Broken" || failures[0].Reason != "boom" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestDetectPatterns_Catalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		dir     domain.PatternDirection
		tail    []domain.Candle
	}{
		{
			name:    "shooting star",
			pattern: "Shooting Star",
			dir:     domain.DirectionBearish,
			tail: []domain.Candle{
				{Open: 100, Close: 103, High: 103.5, Low: 99.8},
				{Open: 103, Close: 102.8, High: 106, Low: 102.75},
			},
		},
		{
			name:    "evening star",
			pattern: "Evening Star",
			dir:     domain.DirectionBearish,
			tail: []domain.Candle{
				{Open: 100, Close: 110, High: 110.5, Low: 99.5},
				{Open: 111, Close: 111.5, High: 112, Low: 110.8},
				{Open: 110.5, Close: 104, High: 110.8, Low: 103.5},
			},
		},
		{
			name:    "three white soldiers",
			pattern: "Three White Soldiers",
			dir:     domain.DirectionBullish,
			tail: []domain.Candle{
				{Open: 100, Close: 105, High: 105.2, Low: 99.8},
				{Open: 104, Close: 109, High: 109.1, Low: 103.8},
				{Open: 108, Close: 113, High: 113.1, Low: 107.8},
			},
		},
		{
			name:    "bullish harami",
			pattern: "Harami",
			dir:     domain.DirectionBullish,
			tail: []domain.Candle{
				{Open: 110, Close: 100, High: 110.5, Low: 99.5},
				{Open: 103, Close: 106, High: 106.5, Low: 102.5},
			},
		},
		{
			name:    "bearish harami",
			pattern: "Harami",
			dir:     domain.DirectionBearish,
			tail: []domain.Candle{
				{Open: 100, Close: 110, High: 110.5, Low: 99.5},
				{Open: 107, Close: 104, High: 107.5, Low: 103.5},
			},
		},
		{
			name:    "piercing",
			pattern: "Piercing",
			dir:     domain.DirectionBullish,
			tail: []domain.Candle{
				{Open: 110, Close: 100, High: 110.5, Low: 99.5},
				{Open: 98, Close: 107, High: 107.5, Low: 97.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := withTail(base(12), tt.tail...)
			matches := DetectPatterns(s)
			if !hasMatch(matches, tt.pattern, tt.dir, s.Last().OpenTime) {
				t.Fatalf("expected %s %s at %d, got %+v", tt.dir, tt.pattern, s.Last().OpenTime, matches)
			}
		})
	}
}
