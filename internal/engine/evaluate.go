package engine

import (
	"math"

	"monitoring/internal/domain"
)

// equalsEpsilon bounds float comparison for the equals operator.
const equalsEpsilon = 1e-3

// conditionFunc compares one observed value against one threshold.
// Params: observed metric value and rule threshold.
// Returns: true when the rule condition holds.
type conditionFunc func(value, threshold float64) bool

// conditions maps each operator onto its comparison.
// Unknown operators are simply absent, so evaluation fails safe.
var conditions = map[domain.Operator]conditionFunc{
	domain.OperatorAbove: func(value, threshold float64) bool { return value > threshold },
	domain.OperatorBelow: func(value, threshold float64) bool { return value < threshold },
	domain.OperatorEquals: func(value, threshold float64) bool {
		return math.Abs(value-threshold) < equalsEpsilon
	},
}

// Evaluate applies one rule condition to one observed value.
// Pure and total: no side effects, never panics, and an unrecognized
// operator returns false rather than triggering on malformed config.
// Params: observed value, comparison operator, and threshold.
// Returns: true when the condition holds.
func Evaluate(value float64, operator domain.Operator, threshold float64) bool {
	condition, ok := conditions[operator]
	if !ok {
		return false
	}
	return condition(value, threshold)
}
