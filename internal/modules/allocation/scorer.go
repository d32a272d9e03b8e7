package allocation

import (
	"github.com/aristath/allocator/pkg/formulas"
)

// Score combines the per-day signals linearly:
//
//	score[t] = w_r*return[t] + w_m*market_delta[t] + w_f*fund[t] + w_c*regime[t]
func Score(fs *FeatureSet, regime []float64, w Weights) ([]float64, error) {
	if fs == nil {
		return nil, invalidf("feature set is nil")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if len(regime) != fs.Days {
		return nil, invalidf("regime signal covers %d days, features %d", len(regime), fs.Days)
	}

	scores := make([]float64, fs.Days)
	for t := range scores {
		scores[t] = w.Return*fs.Returns[t] +
			w.Market*fs.MarketDelta[t] +
			w.Fund*fs.FundCharacteristics[t] +
			w.Regime*regime[t]
		if !formulas.IsFinite(scores[t]) {
			return nil, arithmeticf("score[%d] is %v", t, scores[t])
		}
	}
	return scores, nil
}
