// Package allocation turns per-day return, cash-flow, market and fund observations into
// a non-negative allocation vector over a short horizon.
//
// The pipeline is a linear chain: feature builder, regime segmenter, signal scorer,
// tilt stage and normalizer, with an optional horizon forecaster in front. Every call
// builds its own values; nothing is shared between calls.
package allocation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/pkg/formulas"
)

// DefaultTolerance bounds |sum(allocation) - 1| for a valid AllocationVector.
const DefaultTolerance = 1e-6

// PriceSeries is one positive price per trading day.
type PriceSeries []float64

// ReturnSeries holds simple daily returns derived from a PriceSeries.
type ReturnSeries []float64

// CashFlowSeries holds the portfolio value path compounded from the returns.
type CashFlowSeries []float64

// MarketIndexSeries holds external index levels at the same cadence as the returns.
type MarketIndexSeries []float64

// FundCharacteristicVector holds a bounded qualitative fund attribute per day
// (liquidity, ESG score and the like).
type FundCharacteristicVector []float64

// ActionValueSeries is an external allocate/withhold strength in [0,1] per day.
type ActionValueSeries []float64

// SentimentSeries is an external sentiment score in [0,1] per day.
type SentimentSeries []float64

// AllocationVector is the per-day share of the cash position. Entries are
// non-negative and sum to 1.
type AllocationVector []float64

// Sum returns the total weight.
func (a AllocationVector) Sum() float64 {
	total := 0.0
	for _, w := range a {
		total += w
	}
	return total
}

// Validate checks non-negativity and that the weights sum to 1 within tol.
func (a AllocationVector) Validate(tol float64) error {
	if len(a) == 0 {
		return invalidf("allocation is empty")
	}
	for i, w := range a {
		if !formulas.IsFinite(w) {
			return arithmeticf("allocation[%d] is %v", i, w)
		}
		if w < 0 {
			return invalidf("allocation[%d] is negative (%v)", i, w)
		}
	}
	if sum := a.Sum(); math.Abs(sum-1) > tol {
		return invalidf("allocation sums to %v, want 1±%v", sum, tol)
	}
	return nil
}

// UniformAllocation spreads the position evenly over n days. The pipeline never
// substitutes it on its own; callers use it as an explicit fallback policy.
func UniformAllocation(n int) AllocationVector {
	if n <= 0 {
		return AllocationVector{}
	}
	out := make(AllocationVector, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

// ReturnsFromPrices computes r[t] = (p[t+1]-p[t])/p[t].
func ReturnsFromPrices(prices PriceSeries) (ReturnSeries, error) {
	if len(prices) < 2 {
		return nil, invalidf("need at least 2 prices, got %d", len(prices))
	}
	for i, p := range prices {
		if !formulas.IsFinite(p) || p <= 0 {
			return nil, invalidf("price[%d] must be positive and finite, got %v", i, p)
		}
	}
	return ReturnSeries(formulas.CalculateReturns(prices)), nil
}

// CashFlowsFromReturns compounds the returns onto the initial investment:
// cf[t] = initial * Π(1+r[0..=t]).
func CashFlowsFromReturns(returns ReturnSeries, initialInvestment float64) (CashFlowSeries, error) {
	if !formulas.IsFinite(initialInvestment) || initialInvestment <= 0 {
		return nil, invalidf("initial investment must be positive and finite, got %v", initialInvestment)
	}
	if len(returns) == 0 {
		return nil, invalidf("returns series is empty")
	}
	if i := formulas.FirstNonFinite(returns); i >= 0 {
		return nil, invalidf("returns[%d] is %v", i, returns[i])
	}
	return CashFlowSeries(formulas.CumulativeValue(returns, initialInvestment)), nil
}

// Inputs groups the per-day series consumed together by the feature builder.
type Inputs struct {
	Returns             ReturnSeries
	CashFlows           CashFlowSeries
	MarketIndices       MarketIndexSeries
	FundCharacteristics FundCharacteristicVector
}

// series returns the inputs in a fixed order with their names.
func (in Inputs) series() []namedSeries {
	return []namedSeries{
		{"returns", in.Returns},
		{"cash_flows", in.CashFlows},
		{"market_indices", in.MarketIndices},
		{"fund_characteristics", in.FundCharacteristics},
	}
}

type namedSeries struct {
	name   string
	values []float64
}

// MinLength is the shortest input length.
func (in Inputs) MinLength() int {
	minLen := -1
	for _, s := range in.series() {
		if minLen < 0 || len(s.values) < minLen {
			minLen = len(s.values)
		}
	}
	return minLen
}

// ClusterAssignment maps each day to a regime cluster.
type ClusterAssignment struct {
	Labels     []int       // Cluster id per day, in [0, K)
	Centroids  [][]float64 // K centroid vectors in feature space
	K          int
	Iterations int
	Converged  bool
	Degenerate bool // All rows identical; a single cluster was returned
}

// Sizes returns the number of days assigned to each cluster.
func (c *ClusterAssignment) Sizes() []int {
	sizes := make([]int, c.K)
	for _, l := range c.Labels {
		sizes[l]++
	}
	return sizes
}

// Request is the input of a single allocation run.
type Request struct {
	Returns             ReturnSeries
	CashFlows           CashFlowSeries
	MarketIndices       MarketIndexSeries
	FundCharacteristics FundCharacteristicVector
	HorizonDays         int

	// Optional external signals; nil means the signal is absent.
	Sentiment    SentimentSeries
	ActionValues ActionValueSeries

	// Clusters overrides the configured cluster count when positive.
	Clusters int
	// Seed overrides the configured clustering seed when set.
	Seed *uint64
}

func (r Request) inputs() Inputs {
	return Inputs{
		Returns:             r.Returns,
		CashFlows:           r.CashFlows,
		MarketIndices:       r.MarketIndices,
		FundCharacteristics: r.FundCharacteristics,
	}
}

// Result is the output of a single allocation run.
type Result struct {
	RunID        string
	Allocation   AllocationVector
	Scores       []float64
	Tilted       []float64
	RegimeSignal []float64
	Clusters     *ClusterAssignment
	Days         int
	ForecastDays int
	Duration     time.Duration
}

func (r *Result) String() string {
	return fmt.Sprintf("allocation run %s: %d days (%d forecast), k=%d", r.RunID, r.Days, r.ForecastDays, r.Clusters.K)
}
