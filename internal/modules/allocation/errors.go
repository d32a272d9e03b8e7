package allocation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can surface them without parsing
// messages.
type ErrorKind string

const (
	KindInputValidation      ErrorKind = "input_validation"
	KindInsufficientData     ErrorKind = "insufficient_data"
	KindClustering           ErrorKind = "clustering"
	KindArithmetic           ErrorKind = "arithmetic"
	KindDegenerateAllocation ErrorKind = "degenerate_allocation"
	KindUnknown              ErrorKind = "unknown"
)

var (
	// ErrInputValidation covers empty, mismatched or non-finite inputs and a
	// non-positive horizon.
	ErrInputValidation = errors.New("invalid input")
	// ErrInsufficientData is returned when a forecast needs more history than provided.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrClustering is returned when the requested cluster count exceeds the sample count.
	ErrClustering = errors.New("clustering failed")
	// ErrArithmetic is returned when an intermediate value is NaN or infinite.
	ErrArithmetic = errors.New("non-finite intermediate value")
	// ErrDegenerateAllocation is returned when every day scores non-positive.
	ErrDegenerateAllocation = errors.New("degenerate allocation")
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInputValidation, KindInputValidation},
	{ErrInsufficientData, KindInsufficientData},
	{ErrClustering, KindClustering},
	{ErrArithmetic, KindArithmetic},
	{ErrDegenerateAllocation, KindDegenerateAllocation},
}

// KindOf returns the kind of a (possibly wrapped) pipeline error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, fmt.Sprintf(format, args...))
}

func arithmeticf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArithmetic, fmt.Sprintf(format, args...))
}

// stageError prefixes err with the pipeline stage that produced it.
func stageError(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
