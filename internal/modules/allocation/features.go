package allocation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/pkg/formulas"
)

// Feature column names in matrix order.
const (
	ColumnReturn      = "return"
	ColumnCashFlow    = "cash_flow"
	ColumnMarketDelta = "market_delta"
	ColumnFund        = "fund_characteristic"
)

// FeatureOptions controls how the feature matrix is built.
type FeatureOptions struct {
	// Standardize z-scores every column before clustering.
	Standardize bool
	// Extended appends market_delta and fund_characteristic columns.
	Extended bool
	// MaxAbsReturn rejects daily returns beyond this magnitude; 0 disables the check.
	MaxAbsReturn float64
	// MaxCashFlow rejects cash flows beyond this magnitude; 0 disables the check.
	MaxCashFlow float64
}

// FeatureSet is the aligned, truncated view of the inputs plus the clustering matrix.
type FeatureSet struct {
	Days                int
	Columns             []string
	Matrix              *mat.Dense // Days x len(Columns)
	Returns             ReturnSeries
	CashFlows           CashFlowSeries
	MarketIndices       MarketIndexSeries
	MarketDelta         []float64
	FundCharacteristics FundCharacteristicVector
}

// ValidateInputs rejects empty series and non-finite values.
func ValidateInputs(in Inputs) error {
	for _, s := range in.series() {
		if len(s.values) == 0 {
			return invalidf("%s series is empty", s.name)
		}
		if i := formulas.FirstNonFinite(s.values); i >= 0 {
			return invalidf("%s[%d] is %v", s.name, i, s.values[i])
		}
	}
	return nil
}

// BuildFeatures truncates every series to min(n, shortest input) and derives the
// per-day features. No day is paired with another day's inputs.
func BuildFeatures(in Inputs, n int, opts FeatureOptions) (*FeatureSet, error) {
	if n <= 0 {
		return nil, invalidf("horizon must be positive, got %d", n)
	}
	if err := ValidateInputs(in); err != nil {
		return nil, err
	}

	days := min(n, in.MinLength())

	fs := &FeatureSet{
		Days:                days,
		Returns:             append(ReturnSeries(nil), in.Returns[:days]...),
		CashFlows:           append(CashFlowSeries(nil), in.CashFlows[:days]...),
		MarketIndices:       append(MarketIndexSeries(nil), in.MarketIndices[:days]...),
		FundCharacteristics: append(FundCharacteristicVector(nil), in.FundCharacteristics[:days]...),
	}

	if opts.MaxAbsReturn > 0 {
		for i, r := range fs.Returns {
			if math.Abs(r) > opts.MaxAbsReturn {
				return nil, invalidf("returns[%d] = %v exceeds outlier limit %v", i, r, opts.MaxAbsReturn)
			}
		}
	}

	if opts.MaxCashFlow > 0 {
		for i, cf := range fs.CashFlows {
			if math.Abs(cf) > opts.MaxCashFlow {
				return nil, invalidf("cash_flows[%d] = %v exceeds outlier limit %v", i, cf, opts.MaxCashFlow)
			}
		}
	}

	// A zero level would make the next day's change undefined.
	for i := 0; i < days-1; i++ {
		if fs.MarketIndices[i] == 0 {
			return nil, invalidf("market_indices[%d] is zero", i)
		}
	}
	fs.MarketDelta = formulas.PercentChange(fs.MarketIndices)

	columns := [][]float64{fs.Returns, fs.CashFlows}
	fs.Columns = []string{ColumnReturn, ColumnCashFlow}
	if opts.Extended {
		columns = append(columns, fs.MarketDelta, fs.FundCharacteristics)
		fs.Columns = append(fs.Columns, ColumnMarketDelta, ColumnFund)
	}

	fs.Matrix = mat.NewDense(days, len(columns), nil)
	for j, col := range columns {
		if opts.Standardize {
			col = formulas.Standardize(col)
		}
		fs.Matrix.SetCol(j, col)
	}

	return fs, nil
}
