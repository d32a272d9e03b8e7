package formulas

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// CumulativeValue compounds returns onto an initial amount.
// Value[t] = initial * (1+r[0]) * ... * (1+r[t])
func CumulativeValue(returns []float64, initial float64) []float64 {
	values := make([]float64, len(returns))
	value := initial
	for i, r := range returns {
		value *= 1 + r
		values[i] = value
	}
	return values
}

// PercentChange returns the day-over-day relative change of a level series.
// The first element has no prior observation and is 0. A zero prior level yields 0
// for that day; callers that need to reject it should check levels first.
func PercentChange(levels []float64) []float64 {
	out := make([]float64, len(levels))
	for i := 1; i < len(levels); i++ {
		if levels[i-1] != 0 {
			out[i] = (levels[i] - levels[i-1]) / levels[i-1]
		}
	}
	return out
}
