// Package series turns raw exchange kline rows into a typed candle series.
package series

import (
	"encoding/json"
	"fmt"
	"math"

	"signal-desk/internal/domain"

	"github.com/shopspring/decimal"
)

// klineFields is the number of leading fields of a kline row that carry
// openTime, open, high, low, close and volume.
const klineFields = 6

var fieldNames = [klineFields]string{"openTime", "open", "high", "low", "close", "volume"}

// Prepare coerces raw kline rows into a Series. Numeric fields may arrive as
// JSON strings or numbers. Only shape and type are checked; ordering and OHLC
// consistency are accepted as given.
func Prepare(rows [][]any) (domain.Series, error) {
	if len(rows) == 0 {
		return nil, domain.ErrEmptyInput
	}

	out := make(domain.Series, len(rows))
	for i, row := range rows {
		if len(row) < klineFields {
			return nil, &domain.MalformedRowError{
				Row:    i,
				Reason: fmt.Sprintf("expected at least %d fields, got %d", klineFields, len(row)),
			}
		}

		var vals [klineFields]decimal.Decimal
		for j := 0; j < klineFields; j++ {
			d, err := toDecimal(row[j])
			if err != nil {
				return nil, &domain.MalformedRowError{Row: i, Reason: fmt.Sprintf("%s: %v", fieldNames[j], err)}
			}
			vals[j] = d
		}

		out[i] = domain.Candle{
			OpenTime: vals[0].IntPart(),
			Open:     vals[1].InexactFloat64(),
			High:     vals[2].InexactFloat64(),
			Low:      vals[3].InexactFloat64(),
			Close:    vals[4].InexactFloat64(),
			Volume:   vals[5].InexactFloat64(),
		}
	}
	return out, nil
}

// FromCandles copies typed candles into a Series, skipping nils.
func FromCandles(candles []*domain.Candle) (domain.Series, error) {
	out := make(domain.Series, 0, len(candles))
	for _, c := range candles {
		if c == nil {
			continue
		}
		out = append(out, *c)
	}
	if len(out) == 0 {
		return nil, domain.ErrEmptyInput
	}
	return out, nil
}

// FormatKlines converts raw rows into the wire shape of the /klines route.
func FormatKlines(rows [][]any) ([]domain.Kline, error) {
	out := make([]domain.Kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 11 {
			return nil, &domain.MalformedRowError{Row: i, Reason: fmt.Sprintf("expected 11 fields, got %d", len(row))}
		}
		var vals [11]decimal.Decimal
		for j := 0; j < 11; j++ {
			d, err := toDecimal(row[j])
			if err != nil {
				return nil, &domain.MalformedRowError{Row: i, Reason: fmt.Sprintf("field %d: %v", j, err)}
			}
			vals[j] = d
		}
		out = append(out, domain.Kline{
			Time:             vals[0].IntPart(),
			Open:             vals[1].InexactFloat64(),
			High:             vals[2].InexactFloat64(),
			Low:              vals[3].InexactFloat64(),
			Close:            vals[4].InexactFloat64(),
			Volume:           vals[5].InexactFloat64(),
			CloseTime:        vals[6].IntPart(),
			QuoteVolume:      vals[7].InexactFloat64(),
			Trades:           vals[8].IntPart(),
			TakerBaseVolume:  vals[9].InexactFloat64(),
			TakerQuoteVolume: vals[10].InexactFloat64(),
		})
	}
	return out, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite value %v", x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite value %v", x)
		}
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case nil:
		return decimal.Decimal{}, fmt.Errorf("missing value")
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}
