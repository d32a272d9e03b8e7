package allocation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/pkg/formulas"
)

func sampleInputs() Inputs {
	return Inputs{
		Returns:             ReturnSeries{0.01, 0.02, -0.01, 0.03, 0.015},
		CashFlows:           CashFlowSeries{100, 200, 150, 250},
		MarketIndices:       MarketIndexSeries{1000, 1010, 1005, 1015, 1020, 1030},
		FundCharacteristics: FundCharacteristicVector{0.8, 0.9, 0.85, 0.95, 0.9},
	}
}

func TestBuildFeatures_TruncatesToShortestInput(t *testing.T) {
	tests := []struct {
		name string
		n    int
		days int
	}{
		{"horizon beyond inputs", 10, 4},
		{"horizon equal to shortest", 4, 4},
		{"horizon shorter than inputs", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := BuildFeatures(sampleInputs(), tt.n, FeatureOptions{})
			require.NoError(t, err)

			assert.Equal(t, tt.days, fs.Days)
			assert.Len(t, fs.Returns, tt.days)
			assert.Len(t, fs.CashFlows, tt.days)
			assert.Len(t, fs.MarketIndices, tt.days)
			assert.Len(t, fs.MarketDelta, tt.days)
			assert.Len(t, fs.FundCharacteristics, tt.days)

			rows, cols := fs.Matrix.Dims()
			assert.Equal(t, tt.days, rows)
			assert.Equal(t, 2, cols)
		})
	}
}

func TestBuildFeatures_RawColumns(t *testing.T) {
	fs, err := BuildFeatures(sampleInputs(), 4, FeatureOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{ColumnReturn, ColumnCashFlow}, fs.Columns)
	assert.Equal(t, []float64{0.01, 0.02, -0.01, 0.03}, mat.Col(nil, 0, fs.Matrix))
	assert.Equal(t, []float64{100, 200, 150, 250}, mat.Col(nil, 1, fs.Matrix))

	assert.Equal(t, 0.0, fs.MarketDelta[0])
	assert.InDelta(t, 0.01, fs.MarketDelta[1], 1e-12)
	assert.InDelta(t, -5.0/1010.0, fs.MarketDelta[2], 1e-12)
}

func TestBuildFeatures_DoesNotAliasInputs(t *testing.T) {
	in := sampleInputs()
	fs, err := BuildFeatures(in, 4, FeatureOptions{})
	require.NoError(t, err)

	fs.Returns[0] = 99
	assert.Equal(t, 0.01, in.Returns[0])
}

func TestBuildFeatures_ExtendedAndStandardized(t *testing.T) {
	fs, err := BuildFeatures(sampleInputs(), 4, FeatureOptions{Standardize: true, Extended: true})
	require.NoError(t, err)

	assert.Equal(t, []string{ColumnReturn, ColumnCashFlow, ColumnMarketDelta, ColumnFund}, fs.Columns)
	_, cols := fs.Matrix.Dims()
	require.Equal(t, 4, cols)

	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, fs.Matrix)
		mean, std := formulas.PopMeanStdDev(col)
		assert.InDelta(t, 0.0, mean, 1e-12, "column %d mean", j)
		assert.InDelta(t, 1.0, std, 1e-12, "column %d std", j)
	}

	// Raw series stay unscaled for the scorer
	assert.Equal(t, CashFlowSeries{100, 200, 150, 250}, fs.CashFlows)
}

func TestBuildFeatures_ConstantColumnStandardizesToZero(t *testing.T) {
	in := Inputs{
		Returns:             ReturnSeries{0.01, 0.01, 0.01},
		CashFlows:           CashFlowSeries{100, 110, 120},
		MarketIndices:       MarketIndexSeries{1, 1, 1},
		FundCharacteristics: FundCharacteristicVector{0.5, 0.5, 0.5},
	}
	fs, err := BuildFeatures(in, 3, FeatureOptions{Standardize: true})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0}, mat.Col(nil, 0, fs.Matrix))
}

func TestBuildFeatures_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Inputs)
		n      int
		opts   FeatureOptions
	}{
		{"zero horizon", func(in *Inputs) {}, 0, FeatureOptions{}},
		{"negative horizon", func(in *Inputs) {}, -3, FeatureOptions{}},
		{"empty returns", func(in *Inputs) { in.Returns = nil }, 4, FeatureOptions{}},
		{"empty fund characteristics", func(in *Inputs) { in.FundCharacteristics = FundCharacteristicVector{} }, 4, FeatureOptions{}},
		{"NaN cash flow", func(in *Inputs) { in.CashFlows[1] = math.NaN() }, 4, FeatureOptions{}},
		{"infinite market level", func(in *Inputs) { in.MarketIndices[0] = math.Inf(1) }, 4, FeatureOptions{}},
		{"zero market level", func(in *Inputs) { in.MarketIndices[1] = 0 }, 4, FeatureOptions{}},
		{"return outlier", func(in *Inputs) { in.Returns[2] = -1.5 }, 4, FeatureOptions{MaxAbsReturn: 1}},
		{"cash flow outlier", func(in *Inputs) { in.CashFlows[1] = -2e6 }, 4, FeatureOptions{MaxCashFlow: 1e6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInputs()
			tt.mutate(&in)

			_, err := BuildFeatures(in, tt.n, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInputValidation)
		})
	}
}

func TestBuildFeatures_OutlierGuardsIgnoreTruncatedDays(t *testing.T) {
	in := sampleInputs()
	in.Returns[4] = 3
	in.CashFlows = CashFlowSeries{100, 200, 150, 250, 5e6}

	fs, err := BuildFeatures(in, 4, FeatureOptions{MaxAbsReturn: 1, MaxCashFlow: 1e6})
	require.NoError(t, err)
	assert.Equal(t, 4, fs.Days)
}

func TestValidateInputs(t *testing.T) {
	assert.NoError(t, ValidateInputs(sampleInputs()))

	in := sampleInputs()
	in.MarketIndices = nil
	assert.ErrorIs(t, ValidateInputs(in), ErrInputValidation)

	in = sampleInputs()
	in.FundCharacteristics[0] = math.Inf(-1)
	assert.ErrorIs(t, ValidateInputs(in), ErrInputValidation)
}

func TestBuildFeatures_ZeroLevelOnLastDayIsAllowed(t *testing.T) {
	in := sampleInputs()
	in.MarketIndices = MarketIndexSeries{1000, 1010, 1005, 0}

	fs, err := BuildFeatures(in, 4, FeatureOptions{})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, fs.MarketDelta[3], 1e-12)
}
