package allocation

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/allocator/pkg/formulas"
)

// Normalize clips negative scores to zero and rescales the rest to sum to one.
// When nothing positive remains it fails with ErrDegenerateAllocation rather than
// inventing weights; UniformAllocation is available to callers that want a fallback.
func Normalize(tilted []float64) (AllocationVector, error) {
	if len(tilted) == 0 {
		return nil, invalidf("nothing to normalize")
	}

	clipped := make(AllocationVector, len(tilted))
	for i, v := range tilted {
		if !formulas.IsFinite(v) {
			return nil, arithmeticf("tilted[%d] is %v", i, v)
		}
		if v > 0 {
			clipped[i] = v
		}
	}

	sum := floats.Sum(clipped)
	if !formulas.IsFinite(sum) {
		return nil, arithmeticf("score sum is %v", sum)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: all %d days scored non-positive", ErrDegenerateAllocation, len(tilted))
	}

	// Divide rather than scale by 1/sum: a subnormal sum has no finite reciprocal.
	for i := range clipped {
		clipped[i] /= sum
	}
	if err := clipped.Validate(DefaultTolerance); err != nil {
		return nil, arithmeticf("normalized allocation: %v", err)
	}
	return clipped, nil
}
