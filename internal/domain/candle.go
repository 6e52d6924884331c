package domain

// Candle represents a single OHLCV candle. OpenTime is in Unix milliseconds,
// matching the exchange kline payload.
type Candle struct {
	OpenTime int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Series is a chronological run of candles. Gaps and ordering are taken as
// given by the upstream feed.
type Series []Candle

func (s Series) Len() int { return len(s) }

// Last returns the most recent candle. It panics on an empty series.
func (s Series) Last() Candle { return s[len(s)-1] }

func (s Series) Opens() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Open
	}
	return out
}

func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

// Kline is the wire shape returned by the /klines route: the first eleven
// fields of an exchange kline row, numerics already coerced.
type Kline struct {
	Time             int64   `json:"time"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	Volume           float64 `json:"volume"`
	CloseTime        int64   `json:"closeTime"`
	QuoteVolume      float64 `json:"quoteVolume"`
	Trades           int64   `json:"trades"`
	TakerBaseVolume  float64 `json:"takerBaseVolume"`
	TakerQuoteVolume float64 `json:"takerQuoteVolume"`
}

// ArchivedCandle is a candle persisted in the archive, keyed by symbol and
// interval.
type ArchivedCandle struct {
	Symbol   string
	Interval string
	Candle
}

// MarketCoin is a single entry of the top-cryptos listing.
type MarketCoin struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChange24h"`
	MarketCap      float64 `json:"marketCap"`
	Volume24h      float64 `json:"volume24h"`
	Image          string  `json:"image"`
}

// SupportedIntervals lists the kline intervals accepted by the API.
var SupportedIntervals = []string{
	"1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// IsSupportedInterval reports whether interval is a known kline interval.
func IsSupportedInterval(interval string) bool {
	for _, si := range SupportedIntervals {
		if si == interval {
			return true
		}
	}
	return false
}
