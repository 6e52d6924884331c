package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Trend is the EMA-stack classification of the latest price.
type Trend string

const (
	TrendStrongBullish Trend = "STRONG_BULLISH"
	TrendBullish       Trend = "BULLISH"
	TrendStrongBearish Trend = "STRONG_BEARISH"
	TrendBearish       Trend = "BEARISH"
	TrendNeutral       Trend = "NEUTRAL"
)

// Humanize renders the trend for prose, e.g. "strong bullish".
func (t Trend) Humanize() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

type Price struct {
	Value     float64 `json:"value"`
	Precision int     `json:"precision"`
}

type EMAValues struct {
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
}

type RSIValue struct {
	Value    float64 `json:"value"`
	Analysis string  `json:"analysis"`
}

type BollingerValues struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Analysis string  `json:"analysis"`
}

type MACDValues struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Analysis  string  `json:"analysis"`
}

type Indicators struct {
	EMA            EMAValues       `json:"ema"`
	RSI            RSIValue        `json:"rsi"`
	BollingerBands BollingerValues `json:"bollinger_bands"`
	MACD           MACDValues      `json:"macd"`
	ATR            float64         `json:"atr"`
}

type Narrative struct {
	Summary   string `json:"summary"`
	RSI       string `json:"rsi"`
	Bollinger string `json:"bollinger"`
	MACD      string `json:"macd"`
}

// AnalysisRecord is the technical snapshot of a series at its latest
// candle. Every price-denominated field is rounded to Price.Precision; the
// RSI is rounded to two places.
type AnalysisRecord struct {
	Trend      Trend      `json:"trend"`
	Price      Price      `json:"price"`
	Indicators Indicators `json:"indicators"`
	Analysis   Narrative  `json:"analysis"`
	Patterns   []string   `json:"patterns"`
}

type SuggestionType string

const (
	SuggestionLong    SuggestionType = "LONG"
	SuggestionShort   SuggestionType = "SHORT"
	SuggestionNeutral SuggestionType = "NEUTRAL"
	SuggestionError   SuggestionType = "ERROR"
)

const RiskNotApplicable = "N/A"

// TradeSuggestion is one of LongSuggestion, ShortSuggestion,
// NeutralSuggestion or ErrorSuggestion.
type TradeSuggestion interface {
	Type() SuggestionType
	isTradeSuggestion()
}

// Position holds the fields shared by directional suggestions.
type Position struct {
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stopLoss"`
	Targets    [3]float64 `json:"targets"`
	Confidence int        `json:"confidence"`
	Risk       string     `json:"risk"`
}

type LongSuggestion struct{ Position }

type ShortSuggestion struct{ Position }

type NeutralSuggestion struct {
	Message string `json:"message"`
}

type ErrorSuggestion struct {
	Message string `json:"message"`
}

func (LongSuggestion) Type() SuggestionType    { return SuggestionLong }
func (ShortSuggestion) Type() SuggestionType   { return SuggestionShort }
func (NeutralSuggestion) Type() SuggestionType { return SuggestionNeutral }
func (ErrorSuggestion) Type() SuggestionType   { return SuggestionError }

func (LongSuggestion) isTradeSuggestion()    {}
func (ShortSuggestion) isTradeSuggestion()   {}
func (NeutralSuggestion) isTradeSuggestion() {}
func (ErrorSuggestion) isTradeSuggestion()   {}

type positionWire struct {
	Type SuggestionType `json:"type"`
	Position
}

type messageWire struct {
	Type       SuggestionType `json:"type"`
	Message    string         `json:"message"`
	Confidence int            `json:"confidence"`
	Risk       string         `json:"risk"`
}

func (s LongSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionWire{Type: SuggestionLong, Position: s.Position})
}

func (s ShortSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionWire{Type: SuggestionShort, Position: s.Position})
}

func (s NeutralSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageWire{Type: SuggestionNeutral, Message: s.Message, Risk: RiskNotApplicable})
}

func (s ErrorSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageWire{Type: SuggestionError, Message: s.Message, Risk: RiskNotApplicable})
}

type PatternDirection string

const (
	DirectionBullish PatternDirection = "bullish"
	DirectionBearish PatternDirection = "bearish"
)

// PatternMatch is a candlestick pattern found at the candle opened at Time.
type PatternMatch struct {
	Time      int64            `json:"time"`
	Name      string           `json:"name"`
	Direction PatternDirection `json:"type"`
	Strength  int              `json:"strength"`
}

type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// KeyLevel is a support or resistance candidate that survived proximity
// filtering.
type KeyLevel struct {
	Type      LevelType `json:"type"`
	Price     float64   `json:"price"`
	Strength  float64   `json:"strength"`
	Touches   int       `json:"touches"`
	StartTime int64     `json:"start_time"`
	EndTime   int64     `json:"end_time"`
}

// SymbolAnalysis is the full response of an analysis request.
type SymbolAnalysis struct {
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	Analysis   AnalysisRecord  `json:"analysis"`
	Suggestion TradeSuggestion `json:"suggestion"`
}

// ConversationMessage is one turn of a chat with the commentary assistant.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
