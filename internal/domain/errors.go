package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput         = errors.New("no candles supplied")
	ErrMalformedRow       = errors.New("malformed kline row")
	ErrInsufficientWindow = errors.New("insufficient candles for indicator window")

	ErrUnsupportedInterval = errors.New("unsupported kline interval")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrFeedUnavailable     = errors.New("market data feed unavailable")
)

// MalformedRowError reports the first kline row that could not be parsed.
type MalformedRowError struct {
	Row    int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed kline row %d: %s", e.Row, e.Reason)
}

func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// InsufficientWindowError names the indicator whose latest value is still
// inside its lookback period.
type InsufficientWindowError struct {
	Indicator string
	Have      int
	Need      int
}

func (e *InsufficientWindowError) Error() string {
	return fmt.Sprintf("%s needs %d candles, got %d", e.Indicator, e.Need, e.Have)
}

func (e *InsufficientWindowError) Unwrap() error { return ErrInsufficientWindow }

// IsInputError reports whether err stems from the candle data itself rather
// than from a collaborator.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrMalformedRow) ||
		errors.Is(err, ErrInsufficientWindow) ||
		errors.Is(err, ErrUnsupportedInterval) ||
		errors.Is(err, ErrInvalidSymbol)
}
