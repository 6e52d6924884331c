package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"signal-desk/internal/domain"
)

const (
	DefaultLevelPeriod = 20
	maxKeyLevels       = 6
	touchTolerance     = 0.001
	levelSpacing       = 0.005
)

// LevelPeriod returns the pivot half-window used for an interval: shorter
// intervals look at fewer neighbours.
func LevelPeriod(interval string) int {
	switch interval {
	case "1m", "5m":
		return 10
	case "15m", "30m":
		return 15
	default:
		return DefaultLevelPeriod
	}
}

// FindKeyLevels finds candles whose high (low) is the extreme of the window
// [i-period, i+period) and ranks them by touches times mean window volume.
// The strongest levels at least 0.5% apart are returned, at most six.
func FindKeyLevels(s domain.Series, period int) []domain.KeyLevel {
	levels := make([]domain.KeyLevel, 0)
	if period <= 0 || len(s) <= 2*period {
		return levels
	}

	highs := s.Highs()
	lows := s.Lows()
	volumes := s.Volumes()

	var candidates []domain.KeyLevel
	for i := period; i < len(s)-period; i++ {
		from, to := i-period, i+period
		meanVolume := stat.Mean(volumes[from:to], nil)

		if highs[i] == floats.Max(highs[from:to]) {
			touches := countTouches(highs, highs[i])
			candidates = append(candidates, domain.KeyLevel{
				Type:      domain.LevelResistance,
				Price:     highs[i],
				Strength:  float64(touches) * meanVolume,
				Touches:   touches,
				StartTime: s[from].OpenTime,
				EndTime:   s[to].OpenTime,
			})
		}
		if lows[i] == floats.Min(lows[from:to]) {
			touches := countTouches(lows, lows[i])
			candidates = append(candidates, domain.KeyLevel{
				Type:      domain.LevelSupport,
				Price:     lows[i],
				Strength:  float64(touches) * meanVolume,
				Touches:   touches,
				StartTime: s[from].OpenTime,
				EndTime:   s[to].OpenTime,
			})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Strength > candidates[b].Strength
	})

	for _, c := range candidates {
		if !tooClose(levels, c.Price) {
			levels = append(levels, c)
		}
		if len(levels) >= maxKeyLevels {
			break
		}
	}
	return levels
}

func tooClose(kept []domain.KeyLevel, price float64) bool {
	for _, k := range kept {
		if math.Abs(k.Price-price)/price < levelSpacing {
			return true
		}
	}
	return false
}

// countTouches counts every candle of the series, not just the window,
// whose value lies strictly within 0.1% of price.
func countTouches(values []float64, price float64) int {
	n := 0
	for _, v := range values {
		if math.Abs(v-price) < price*touchTolerance {
			n++
		}
	}
	return n
}
