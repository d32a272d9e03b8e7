package allocation

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/allocator/pkg/formulas"
	"github.com/aristath/allocator/pkg/logger"
)

const (
	fallbackAlpha = 0.5
	fallbackBeta  = 0.1
	// Smoothing parameters are kept strictly inside (0,1).
	paramFloor = 1e-4
)

// ForecastModel is a fitted exponential-smoothing model (no seasonality).
type ForecastModel struct {
	Method ForecastMethod
	Alpha  float64
	Beta   float64 // 0 without trend
	Level  float64 // Final smoothed level
	Trend  float64 // Final smoothed slope, 0 without trend
	SSE    float64 // One-step-ahead squared error over the history
	AIC    float64
}

// Predict returns the next steps values after the history.
func (m *ForecastModel) Predict(steps int) []float64 {
	out := make([]float64, steps)
	for h := 1; h <= steps; h++ {
		out[h-1] = m.Level + float64(h)*m.Trend
	}
	return out
}

// Forecaster extends short series to a requested horizon.
type Forecaster struct {
	cfg ForecastConfig
	log zerolog.Logger
}

// NewForecaster creates a forecaster; an empty method means ForecastAuto.
func NewForecaster(cfg ForecastConfig, log zerolog.Logger) *Forecaster {
	if cfg.Method == "" {
		cfg.Method = ForecastAuto
	}
	return &Forecaster{
		cfg: cfg,
		log: logger.Component(log, "forecaster"),
	}
}

// Extend returns a series of exactly horizon values. The historical prefix is copied
// unchanged; only the suffix beyond the history is synthetic.
func (f *Forecaster) Extend(series []float64, horizon int) ([]float64, error) {
	if horizon <= 0 {
		return nil, invalidf("horizon must be positive, got %d", horizon)
	}
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: forecasting needs at least 2 points, got %d", ErrInsufficientData, len(series))
	}
	if i := formulas.FirstNonFinite(series); i >= 0 {
		return nil, invalidf("series[%d] is %v", i, series[i])
	}

	if horizon <= len(series) {
		return append([]float64(nil), series[:horizon]...), nil
	}

	model, err := f.Fit(series)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, horizon)
	out = append(out, series...)
	out = append(out, model.Predict(horizon-len(series))...)
	if i := formulas.FirstNonFinite(out); i >= 0 {
		return nil, arithmeticf("forecast[%d] is %v", i, out[i])
	}
	return out, nil
}

// Fit estimates the configured model on the history.
func (f *Forecaster) Fit(series []float64) (*ForecastModel, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: forecasting needs at least 2 points, got %d", ErrInsufficientData, len(series))
	}

	switch f.cfg.Method {
	case ForecastSimple:
		return f.fitSmoothing(series, false), nil
	case ForecastHolt:
		return f.fitSmoothing(series, true), nil
	case ForecastEMA:
		return f.fitEMA(series)
	case ForecastAuto:
		simple := f.fitSmoothing(series, false)
		holt := f.fitSmoothing(series, true)
		f.log.Debug().
			Float64("simple_aic", simple.AIC).
			Float64("holt_aic", holt.AIC).
			Msg("Compared smoothing models")
		if holt.AIC < simple.AIC {
			return holt, nil
		}
		return simple, nil
	default:
		return nil, invalidf("unknown forecast method %q", f.cfg.Method)
	}
}

func (f *Forecaster) fitEMA(series []float64) (*ForecastModel, error) {
	period := f.cfg.EMAPeriod
	if period < 2 {
		period = 2
	}
	level := formulas.CalculateEMA(series, period)
	if level == nil {
		return nil, arithmeticf("ema of %d points with period %d is undefined", len(series), period)
	}
	return &ForecastModel{
		Method: ForecastEMA,
		Alpha:  2 / float64(period+1),
		Level:  *level,
	}, nil
}

// fitSmoothing fits simple (level) or Holt (level + trend) exponential smoothing.
// Parameters not fixed in the config are chosen by minimizing the one-step-ahead SSE.
func (f *Forecaster) fitSmoothing(series []float64, trend bool) *ForecastModel {
	alpha, beta := f.cfg.Alpha, 0.0
	if trend {
		beta = f.cfg.Beta
	}

	var free []*float64
	if alpha == 0 {
		free = append(free, &alpha)
	}
	if trend && beta == 0 {
		free = append(free, &beta)
	}

	if len(free) > 0 {
		initial := make([]float64, len(free))
		for i, p := range free {
			if p == &alpha {
				initial[i] = logit(fallbackAlpha)
			} else {
				initial[i] = logit(fallbackBeta)
			}
		}

		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				for i, p := range free {
					*p = squash(x[i])
				}
				_, _, sse := runSmoothing(series, alpha, beta, trend)
				if !formulas.IsFinite(sse) {
					return math.MaxFloat64
				}
				return sse
			},
		}

		result, err := optimize.Minimize(problem, initial, nil, &optimize.NelderMead{})
		if err != nil || result == nil {
			f.log.Warn().Err(err).Bool("trend", trend).Msg("Smoothing fit failed, using fallback parameters")
			for _, p := range free {
				if p == &alpha {
					*p = fallbackAlpha
				} else {
					*p = fallbackBeta
				}
			}
		} else {
			for i, p := range free {
				*p = squash(result.X[i])
			}
		}
	}

	level, slope, sse := runSmoothing(series, alpha, beta, trend)

	method, params := ForecastSimple, 2.0
	if trend {
		method, params = ForecastHolt, 4.0
	}
	return &ForecastModel{
		Method: method,
		Alpha:  alpha,
		Beta:   beta,
		Level:  level,
		Trend:  slope,
		SSE:    sse,
		AIC:    aic(sse, len(series)-1, params),
	}
}

// runSmoothing filters the series and returns the final level, slope and the
// one-step-ahead sum of squared errors. Initial state: l0 = y0, b0 = y1 - y0.
func runSmoothing(y []float64, alpha, beta float64, trend bool) (level, slope, sse float64) {
	level = y[0]
	if trend {
		slope = y[1] - y[0]
	}
	for t := 1; t < len(y); t++ {
		e := y[t] - (level + slope)
		sse += e * e

		prev := level
		level = alpha*y[t] + (1-alpha)*(prev+slope)
		if trend {
			slope = beta*(level-prev) + (1-beta)*slope
		}
	}
	return level, slope, sse
}

func aic(sse float64, n int, params float64) float64 {
	if n <= 0 {
		return 2 * params
	}
	mse := sse / float64(n)
	if mse < 1e-300 {
		mse = 1e-300
	}
	return float64(n)*math.Log(mse) + 2*params
}

// squash maps the real line onto (paramFloor, 1-paramFloor).
func squash(x float64) float64 {
	return paramFloor + (1-2*paramFloor)/(1+math.Exp(-x))
}

func logit(p float64) float64 {
	q := (p - paramFloor) / (1 - 2*paramFloor)
	return math.Log(q / (1 - q))
}
