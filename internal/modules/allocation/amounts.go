package allocation

import (
	"github.com/shopspring/decimal"
)

// DollarAmounts renders allocation[t] * investment in cents. The amounts add up to the
// investment exactly; the rounding residual goes to the largest allocation.
func DollarAmounts(alloc AllocationVector, investment decimal.Decimal) ([]decimal.Decimal, error) {
	if !investment.IsPositive() {
		return nil, invalidf("investment must be positive, got %s", investment)
	}
	if err := alloc.Validate(DefaultTolerance); err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, len(alloc))
	total := decimal.Zero
	largest := 0
	for i, w := range alloc {
		amounts[i] = investment.Mul(decimal.NewFromFloat(w)).Round(2)
		total = total.Add(amounts[i])
		if w > alloc[largest] {
			largest = i
		}
	}

	residual := investment.Round(2).Sub(total)
	amounts[largest] = amounts[largest].Add(residual)
	return amounts, nil
}
