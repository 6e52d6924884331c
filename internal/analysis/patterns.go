package analysis

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"signal-desk/internal/domain"
)

// patternWindow is how many trailing candles are scanned for patterns.
const patternWindow = 3

const (
	patternStrength = 100

	bodyAvgLookback = 10

	dojiBodyRatio      = 0.1
	smallBodyRatio     = 0.3
	shadowRatio        = 2.0
	tinyShadowRatio    = 0.1
	starPenetration    = 0.3
	piercingMidpoint   = 0.5
	starBodyToFirstMax = 0.3
)

// detector returns +1 for a bullish match, -1 for a bearish match and 0
// when the pattern is absent at position i.
type detector struct {
	name   string
	detect func(s domain.Series, i int) int
}

var catalog = []detector{
	{"Doji", doji},
	{"Hammer", hammer},
	{"Shooting Star", shootingStar},
	{"Engulfing", engulfing},
	{"Morning Star", morningStar},
	{"Evening Star", eveningStar},
	{"Three White Soldiers", threeWhiteSoldiers},
	{"Three Black Crows", threeBlackCrows},
	{"Harami", harami},
	{"Piercing", piercing},
}

// PatternFailure records a detector that could not be evaluated at one
// position.
type PatternFailure struct {
	Pattern string
	Index   int
	Reason  string
}

// DetectPatterns runs every catalog detector at each of the last three
// positions. A detector that fails is logged and skipped; the others still
// report.
func DetectPatterns(s domain.Series) []domain.PatternMatch {
	matches, _ := ScanPatterns(s)
	return matches
}

// ScanPatterns is DetectPatterns that also returns the failed detectors.
func ScanPatterns(s domain.Series) ([]domain.PatternMatch, []PatternFailure) {
	matches := make([]domain.PatternMatch, 0)
	var failures []PatternFailure
	start := len(s) - patternWindow
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s); i++ {
		for _, d := range catalog {
			dir, err := safeDetect(d, s, i)
			if err != nil {
				failures = append(failures, PatternFailure{Pattern: d.name, Index: i, Reason: err.Error()})
				continue
			}
			if dir == 0 {
				continue
			}
			m := domain.PatternMatch{
				Time:      s[i].OpenTime,
				Name:      d.name,
				Direction: domain.DirectionBullish,
				Strength:  patternStrength,
			}
			if dir < 0 {
				m.Direction = domain.DirectionBearish
			}
			matches = append(matches, m)
		}
	}
	return matches, failures
}

// LatestPatternNames lists the quick patterns reported inside an
// AnalysisRecord, evaluated on the latest candle only.
func LatestPatternNames(s domain.Series) []string {
	names := make([]string, 0)
	if len(s) == 0 {
		return names
	}
	i := len(s) - 1
	if doji(s, i) != 0 {
		names = append(names, "Doji")
	}
	if hammer(s, i) != 0 {
		names = append(names, "Hammer")
	}
	switch engulfing(s, i) {
	case 1:
		names = append(names, "Bullish Engulfing")
	case -1:
		names = append(names, "Bearish Engulfing")
	}
	return names
}

func safeDetect(d detector, s domain.Series, i int) (dir int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("pattern detector failed", "pattern", d.name, "index", i, "panic", r)
			dir, err = 0, fmt.Errorf("%v", r)
		}
	}()
	return d.detect(s, i), nil
}

func body(c domain.Candle) float64        { return math.Abs(c.Close - c.Open) }
func candleRange(c domain.Candle) float64 { return c.High - c.Low }
func bodyTop(c domain.Candle) float64     { return math.Max(c.Open, c.Close) }
func bodyBottom(c domain.Candle) float64  { return math.Min(c.Open, c.Close) }
func upperShadow(c domain.Candle) float64 { return c.High - bodyTop(c) }
func lowerShadow(c domain.Candle) float64 { return bodyBottom(c) - c.Low }
func isBullish(c domain.Candle) bool      { return c.Close > c.Open }
func isBearish(c domain.Candle) bool      { return c.Close < c.Open }

// bodyAvg is the mean body of up to bodyAvgLookback candles before i. With
// no history the candle's own body is the reference.
func bodyAvg(s domain.Series, i int) float64 {
	from := i - bodyAvgLookback
	if from < 0 {
		from = 0
	}
	if from == i {
		return body(s[i])
	}
	var sum float64
	for _, c := range s[from:i] {
		sum += body(c)
	}
	return sum / float64(i-from)
}

func isLongBody(s domain.Series, i int) bool {
	return body(s[i]) > bodyAvg(s, i)
}

func doji(s domain.Series, i int) int {
	c := s[i]
	r := candleRange(c)
	if r > 0 && body(c) <= dojiBodyRatio*r {
		return 1
	}
	return 0
}

func hammer(s domain.Series, i int) int {
	c := s[i]
	r := candleRange(c)
	if r <= 0 || body(c) > smallBodyRatio*r {
		return 0
	}
	if lowerShadow(c) > 0 && lowerShadow(c) >= shadowRatio*body(c) && upperShadow(c) <= tinyShadowRatio*r {
		return 1
	}
	return 0
}

func shootingStar(s domain.Series, i int) int {
	if i < 1 {
		return 0
	}
	c := s[i]
	r := candleRange(c)
	if r <= 0 || body(c) > smallBodyRatio*r || !isBullish(s[i-1]) {
		return 0
	}
	if upperShadow(c) > 0 && upperShadow(c) >= shadowRatio*body(c) && lowerShadow(c) <= tinyShadowRatio*r {
		return -1
	}
	return 0
}

func engulfing(s domain.Series, i int) int {
	if i < 1 {
		return 0
	}
	prev, c := s[i-1], s[i]
	switch {
	case isBearish(prev) && isBullish(c) &&
		c.Open <= prev.Close && c.Close >= prev.Open &&
		(c.Open < prev.Close || c.Close > prev.Open):
		return 1
	case isBullish(prev) && isBearish(c) &&
		c.Open >= prev.Close && c.Close <= prev.Open &&
		(c.Open > prev.Close || c.Close < prev.Open):
		return -1
	}
	return 0
}

func harami(s domain.Series, i int) int {
	if i < 1 {
		return 0
	}
	prev, c := s[i-1], s[i]
	if !isLongBody(s, i-1) || body(c) >= body(prev) {
		return 0
	}
	if bodyTop(c) >= bodyTop(prev) || bodyBottom(c) <= bodyBottom(prev) {
		return 0
	}
	if isBearish(prev) {
		return 1
	}
	if isBullish(prev) {
		return -1
	}
	return 0
}

func piercing(s domain.Series, i int) int {
	if i < 1 {
		return 0
	}
	prev, c := s[i-1], s[i]
	if !isBearish(prev) || !isLongBody(s, i-1) || !isBullish(c) {
		return 0
	}
	if c.Open < prev.Low && c.Close > prev.Close+piercingMidpoint*body(prev) && c.Close < prev.Open {
		return 1
	}
	return 0
}

func morningStar(s domain.Series, i int) int {
	if i < 2 {
		return 0
	}
	first, star, c := s[i-2], s[i-1], s[i]
	if !isBearish(first) || !isLongBody(s, i-2) {
		return 0
	}
	if body(star) > starBodyToFirstMax*body(first) || bodyTop(star) >= first.Close {
		return 0
	}
	if isBullish(c) && c.Close > first.Close+starPenetration*body(first) {
		return 1
	}
	return 0
}

func eveningStar(s domain.Series, i int) int {
	if i < 2 {
		return 0
	}
	first, star, c := s[i-2], s[i-1], s[i]
	if !isBullish(first) || !isLongBody(s, i-2) {
		return 0
	}
	if body(star) > starBodyToFirstMax*body(first) || bodyBottom(star) <= first.Close {
		return 0
	}
	if isBearish(c) && c.Close < first.Close-starPenetration*body(first) {
		return -1
	}
	return 0
}

func threeWhiteSoldiers(s domain.Series, i int) int {
	if i < 2 {
		return 0
	}
	a, b, c := s[i-2], s[i-1], s[i]
	for _, k := range []domain.Candle{a, b, c} {
		if !isBullish(k) || upperShadow(k) >= body(k) {
			return 0
		}
	}
	if b.Close <= a.Close || c.Close <= b.Close {
		return 0
	}
	if b.Open <= a.Open || b.Open > a.Close || c.Open <= b.Open || c.Open > b.Close {
		return 0
	}
	return 1
}

func threeBlackCrows(s domain.Series, i int) int {
	if i < 2 {
		return 0
	}
	a, b, c := s[i-2], s[i-1], s[i]
	for _, k := range []domain.Candle{a, b, c} {
		if !isBearish(k) || lowerShadow(k) >= body(k) {
			return 0
		}
	}
	if b.Close >= a.Close || c.Close >= b.Close {
		return 0
	}
	if b.Open >= a.Open || b.Open < a.Close || c.Open >= b.Open || c.Open < b.Close {
		return 0
	}
	return -1
}
