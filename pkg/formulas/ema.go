package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average of a series and returns its
// final value.
//
// EMA Formula:
//
//	EMA_today = (Value_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// The average is seeded with the SMA of the first period values. When the series is
// shorter than the period the SMA of the whole series is returned instead. Returns nil
// for an empty series or a period below 2.
func CalculateEMA(values []float64, period int) *float64 {
	if len(values) == 0 || period < 2 {
		return nil
	}

	if len(values) < period {
		sma := Mean(values)
		return &sma
	}

	ema := talib.Ema(values, period)
	if len(ema) > 0 && IsFinite(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	// Fallback to SMA of last 'period' values
	sma := Mean(values[len(values)-period:])
	return &sma
}
