package analysis

import "math"

// Mean computes arithmetic mean.
// Params: sample values.
// Returns: 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

// StdDev computes population standard deviation.
// Params: sample values.
// Returns: sqrt of the mean squared deviation; 0 for empty input.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, value := range values {
		diff := value - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Regression holds one ordinary-least-squares fit result.
// Params: line coefficients and fit quality.
// Returns: fitted line description for trend estimation.
type Regression struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// LinearRegression fits y = slope*x + intercept by least squares.
// R² is guarded: a zero total sum of squares (constant series) yields
// R² = 0 so a flat line never reports fit confidence.
// Params: paired x/y value slices of equal length.
// Returns: fit result and false when fewer than two points or a degenerate x spread.
func LinearRegression(xs, ys []float64) (Regression, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return Regression{}, false
	}
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return Regression{}, false
	}

	fit := Regression{}
	fit.Slope = (n*sumXY - sumX*sumY) / denom
	fit.Intercept = (sumY - fit.Slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i := range xs {
		estimate := fit.Slope*xs[i] + fit.Intercept
		diff := ys[i] - meanY
		ssTot += diff * diff
		residual := ys[i] - estimate
		ssRes += residual * residual
	}
	if ssTot == 0 {
		fit.R2 = 0
		return fit, true
	}
	fit.R2 = 1 - ssRes/ssTot
	return fit, true
}

// clamp bounds value into [lo, hi].
// Params: value and inclusive bounds.
// Returns: bounded value.
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
