package allocation

import (
	"fmt"

	"github.com/aristath/allocator/pkg/formulas"
)

const (
	DefaultClusters      = 3
	DefaultMaxIterations = 100
	DefaultWorkers       = 4
)

// Weights are the linear coefficients of the signal scorer.
type Weights struct {
	Return float64 `yaml:"return" json:"return"`
	Market float64 `yaml:"market" json:"market"`
	Fund   float64 `yaml:"fund" json:"fund"`
	Regime float64 `yaml:"regime" json:"regime"`
}

// DefaultWeights weighs the four signals equally.
func DefaultWeights() Weights {
	return Weights{Return: 0.25, Market: 0.25, Fund: 0.25, Regime: 0.25}
}

// Validate rejects non-finite weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"return": w.Return,
		"market": w.Market,
		"fund":   w.Fund,
		"regime": w.Regime,
	} {
		if !formulas.IsFinite(v) {
			return invalidf("%s weight is %v", name, v)
		}
	}
	return nil
}

// ForecastMethod selects the exponential-smoothing model of the horizon forecaster.
type ForecastMethod string

const (
	ForecastAuto   ForecastMethod = "auto"   // Lower AIC of simple and holt
	ForecastSimple ForecastMethod = "simple" // Level only
	ForecastHolt   ForecastMethod = "holt"   // Level + additive trend
	ForecastEMA    ForecastMethod = "ema"    // Flat extension of the final EMA
)

// ForecastConfig configures the horizon forecaster. Zero Alpha/Beta mean "fit".
type ForecastConfig struct {
	Method    ForecastMethod `yaml:"method" json:"method"`
	Alpha     float64        `yaml:"alpha" json:"alpha"`
	Beta      float64        `yaml:"beta" json:"beta"`
	EMAPeriod int            `yaml:"ema_period" json:"ema_period"`
}

// Validate checks the method and fixed smoothing parameters.
func (f ForecastConfig) Validate() error {
	switch f.Method {
	case "", ForecastAuto, ForecastSimple, ForecastHolt, ForecastEMA:
	default:
		return invalidf("unknown forecast method %q", f.Method)
	}
	if f.Alpha != 0 && !(f.Alpha > 0 && f.Alpha < 1) {
		return invalidf("alpha must be in (0,1), got %v", f.Alpha)
	}
	if f.Beta != 0 && !(f.Beta > 0 && f.Beta < 1) {
		return invalidf("beta must be in (0,1), got %v", f.Beta)
	}
	if f.EMAPeriod < 0 {
		return invalidf("ema period must not be negative, got %d", f.EMAPeriod)
	}
	return nil
}

// Config is passed explicitly into every pipeline call.
type Config struct {
	Clusters      int     `yaml:"clusters" json:"clusters"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
	Seed          uint64  `yaml:"seed" json:"seed"`
	Standardize   bool    `yaml:"standardize" json:"standardize"`
	Extended      bool    `yaml:"extended_features" json:"extended_features"`
	ExtendHorizon bool    `yaml:"extend_horizon" json:"extend_horizon"`
	MaxAbsReturn  float64 `yaml:"max_abs_return" json:"max_abs_return"`
	MaxCashFlow   float64 `yaml:"max_cash_flow" json:"max_cash_flow"`
	Workers       int     `yaml:"workers" json:"workers"`

	Weights  Weights        `yaml:"weights" json:"weights"`
	Forecast ForecastConfig `yaml:"forecast" json:"forecast"`
}

// DefaultConfig returns the conservative defaults: 3 regimes, equal weights,
// standardized (return, cash_flow) features and no horizon extension.
// Production callers may randomize Seed; tests keep it fixed.
func DefaultConfig() Config {
	return Config{
		Clusters:      DefaultClusters,
		MaxIterations: DefaultMaxIterations,
		Seed:          42,
		Standardize:   true,
		Workers:       DefaultWorkers,
		Weights:       DefaultWeights(),
		Forecast: ForecastConfig{
			Method:    ForecastAuto,
			EMAPeriod: 5,
		},
	}
}

// Validate checks the configuration before any run.
func (c Config) Validate() error {
	if c.Clusters < 0 {
		return invalidf("clusters must not be negative, got %d", c.Clusters)
	}
	if c.MaxIterations < 0 {
		return invalidf("max iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.Workers < 0 {
		return invalidf("workers must not be negative, got %d", c.Workers)
	}
	if !formulas.IsFinite(c.MaxAbsReturn) || c.MaxAbsReturn < 0 {
		return invalidf("max abs return must be a non-negative number, got %v", c.MaxAbsReturn)
	}
	if !formulas.IsFinite(c.MaxCashFlow) || c.MaxCashFlow < 0 {
		return invalidf("max cash flow must be a non-negative number, got %v", c.MaxCashFlow)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	return nil
}

func (c Config) featureOptions() FeatureOptions {
	return FeatureOptions{
		Standardize:  c.Standardize,
		Extended:     c.Extended,
		MaxAbsReturn: c.MaxAbsReturn,
		MaxCashFlow:  c.MaxCashFlow,
	}
}
