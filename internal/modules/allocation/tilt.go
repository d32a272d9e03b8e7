package allocation

import (
	"github.com/aristath/allocator/pkg/formulas"
)

// Tilt applies the action-value and sentiment signals multiplicatively:
//
//	tilted[t] = score[t] * (1 + action[t]) * (1 + sentiment[t])
//
// A nil signal is neutral. A signal shorter than the scores is an error; a longer one
// is truncated to the scores' horizon.
func Tilt(scores []float64, actions ActionValueSeries, sentiment SentimentSeries) ([]float64, error) {
	a, err := alignSignal("action_values", actions, len(scores))
	if err != nil {
		return nil, err
	}
	s, err := alignSignal("sentiment", sentiment, len(scores))
	if err != nil {
		return nil, err
	}

	tilted := make([]float64, len(scores))
	for t, score := range scores {
		tilted[t] = score * (1 + a[t]) * (1 + s[t])
		if !formulas.IsFinite(tilted[t]) {
			return nil, arithmeticf("tilted[%d] is %v", t, tilted[t])
		}
	}
	return tilted, nil
}

// alignSignal validates an optional unit-interval signal and returns exactly n values.
func alignSignal(name string, signal []float64, n int) ([]float64, error) {
	if signal == nil {
		return make([]float64, n), nil
	}
	if len(signal) < n {
		return nil, invalidf("%s has %d values, horizon needs %d", name, len(signal), n)
	}
	signal = signal[:n]
	for i, v := range signal {
		if !formulas.IsFinite(v) || v < 0 || v > 1 {
			return nil, invalidf("%s[%d] = %v is outside [0,1]", name, i, v)
		}
	}
	return signal, nil
}
