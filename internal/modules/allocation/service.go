package allocation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/allocator/pkg/formulas"
	"github.com/aristath/allocator/pkg/logger"
)

// Service runs the allocation pipeline with an explicit configuration.
// It holds no per-run state and is safe for concurrent use.
type Service struct {
	cfg        Config
	forecaster *Forecaster
	log        zerolog.Logger
}

// NewService validates cfg and creates the pipeline service.
func NewService(cfg Config, log zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid allocation config: %w", err)
	}
	return &Service{
		cfg:        cfg,
		forecaster: NewForecaster(cfg.Forecast, log),
		log:        logger.Component(log, "allocation_service"),
	}, nil
}

// Config returns the configuration the service was created with.
func (s *Service) Config() Config {
	return s.cfg
}

// ComputeAllocation recommends how to spread a cash position over the horizon.
//
// The result has min(horizon, shortest input) days, or exactly horizon days when
// horizon extension is enabled. Errors carry one of the pipeline kinds (see KindOf).
func (s *Service) ComputeAllocation(req Request) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	if req.HorizonDays <= 0 {
		return nil, stageError("validate", invalidf("horizon_days must be positive, got %d", req.HorizonDays))
	}
	if req.Clusters < 0 {
		return nil, stageError("validate", invalidf("k_clusters must not be negative, got %d", req.Clusters))
	}

	inputs := req.inputs()
	if err := ValidateInputs(inputs); err != nil {
		return nil, stageError("validate", err)
	}

	forecastDays := 0
	if s.cfg.ExtendHorizon {
		extended, added, err := s.extendInputs(inputs, req.HorizonDays)
		if err != nil {
			return nil, stageError("forecast", err)
		}
		inputs, forecastDays = extended, added
	}

	features, err := BuildFeatures(inputs, req.HorizonDays, s.cfg.featureOptions())
	if err != nil {
		return nil, stageError("features", err)
	}
	log.Debug().
		Int("days", features.Days).
		Strs("columns", features.Columns).
		Float64("return_volatility", formulas.StdDev(features.Returns)).
		Msg("Built feature matrix")

	k, err := s.clusterCount(req.Clusters, features.Days)
	if err != nil {
		return nil, stageError("segment", err)
	}
	seed := s.cfg.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	clusters, err := NewSegmenter(k, s.cfg.MaxIterations, seed).Segment(features.Matrix)
	if err != nil {
		return nil, stageError("segment", err)
	}
	regime, err := RegimeSignal(clusters, features.Returns)
	if err != nil {
		return nil, stageError("segment", err)
	}
	log.Debug().
		Int("k", clusters.K).
		Int("iterations", clusters.Iterations).
		Bool("converged", clusters.Converged).
		Bool("degenerate", clusters.Degenerate).
		Msg("Segmented regimes")

	scores, err := Score(features, regime, s.cfg.Weights)
	if err != nil {
		return nil, stageError("score", err)
	}

	tilted, err := Tilt(scores, req.ActionValues, req.Sentiment)
	if err != nil {
		return nil, stageError("tilt", err)
	}

	alloc, err := Normalize(tilted)
	if err != nil {
		return nil, stageError("normalize", err)
	}

	log.Info().
		Int("days", features.Days).
		Int("forecast_days", forecastDays).
		Int("k", clusters.K).
		Dur("duration", time.Since(start)).
		Msg("Computed allocation")

	return &Result{
		RunID:        runID,
		Allocation:   alloc,
		Scores:       scores,
		Tilted:       tilted,
		RegimeSignal: regime,
		Clusters:     clusters,
		Days:         features.Days,
		ForecastDays: forecastDays,
		Duration:     time.Since(start),
	}, nil
}

// clusterCount resolves the requested k. An explicit request larger than the number of
// days is an error; the configured default is capped at the number of days.
func (s *Service) clusterCount(requested, days int) (int, error) {
	if requested > 0 {
		if requested > days {
			return 0, fmt.Errorf("%w: k=%d exceeds %d days", ErrClustering, requested, days)
		}
		return requested, nil
	}
	k := s.cfg.Clusters
	if k <= 0 {
		k = DefaultClusters
	}
	return min(k, days), nil
}

// extendInputs brings every series to the horizon. Returns, market levels and fund
// characteristics are forecast; forecast fund values stay within the observed range.
// Cash flows are compounded from the extended returns so cf[t] = cf[t-1]*(1+r[t])
// holds on the synthetic days. It returns the extended inputs and the number of
// synthetic days that reach the feature builder.
func (s *Service) extendInputs(in Inputs, horizon int) (Inputs, int, error) {
	historical := in.MinLength()

	returns, err := s.extendSeries("returns", in.Returns, horizon)
	if err != nil {
		return Inputs{}, 0, err
	}
	market, err := s.extendSeries("market_indices", in.MarketIndices, horizon)
	if err != nil {
		return Inputs{}, 0, err
	}
	fund, err := s.extendSeries("fund_characteristics", in.FundCharacteristics, horizon)
	if err != nil {
		return Inputs{}, 0, err
	}
	lo, hi := floats.Min(in.FundCharacteristics), floats.Max(in.FundCharacteristics)
	for t := len(in.FundCharacteristics); t < len(fund); t++ {
		fund[t] = math.Min(math.Max(fund[t], lo), hi)
	}

	cashFlows := in.CashFlows
	if len(cashFlows) < horizon {
		cashFlows = make([]float64, len(in.CashFlows), horizon)
		copy(cashFlows, in.CashFlows)
		for t := len(in.CashFlows); t < horizon; t++ {
			next := cashFlows[t-1] * (1 + returns[t])
			if !formulas.IsFinite(next) {
				return Inputs{}, 0, fmt.Errorf("cash_flows: %w", arithmeticf("compounded cash flow[%d] is %v", t, next))
			}
			cashFlows = append(cashFlows, next)
		}
	}

	return Inputs{
		Returns:             returns,
		CashFlows:           cashFlows,
		MarketIndices:       market,
		FundCharacteristics: fund,
	}, max(0, horizon-historical), nil
}

// extendSeries forecasts a series shorter than the horizon and leaves longer ones as is.
func (s *Service) extendSeries(name string, series []float64, horizon int) ([]float64, error) {
	if len(series) >= horizon {
		return series, nil
	}
	extended, err := s.forecaster.Extend(series, horizon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return extended, nil
}
