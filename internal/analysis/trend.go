package analysis

import (
	"math"
	"strings"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
)

// defaultPolarity marks whether rising values are good for well-known
// metrics. Anything absent here and from the config override is treated
// as higher-is-better.
var defaultPolarity = map[string]bool{
	"execution_time_ms": false,
	"memory_mb":         false,
	"cpu_percent":       false,
	"error_rate":        false,
	"cold_starts":       false,
	"retries":           false,
	"concurrency":       false,
	"response_time":     false,
	"p95_latency_ms":    false,
	"churn_rate":        false,
}

// TrendAnalyzer estimates metric direction by least-squares regression.
// Params: stable band, forecast horizon, and per-metric polarity overrides.
// Returns: stateless analyzer operating on buffer snapshots.
type TrendAnalyzer struct {
	stableBandPct float64
	forecastSteps int
	polarity      map[string]bool
}

// NewTrendAnalyzer creates analyzer from analysis settings.
// Params: defaulted analysis config section.
// Returns: initialized analyzer with merged polarity table.
func NewTrendAnalyzer(cfg config.AnalysisConfig) *TrendAnalyzer {
	polarity := make(map[string]bool, len(defaultPolarity)+len(cfg.HigherIsBetter))
	for metric, higherIsBetter := range defaultPolarity {
		polarity[metric] = higherIsBetter
	}
	for metric, higherIsBetter := range cfg.HigherIsBetter {
		polarity[strings.ToLower(strings.TrimSpace(metric))] = higherIsBetter
	}
	return &TrendAnalyzer{
		stableBandPct: cfg.StableBandPct,
		forecastSteps: cfg.ForecastSteps,
		polarity:      polarity,
	}
}

// HigherIsBetter reports rising-is-good polarity for one metric.
// Params: metric name.
// Returns: true when rising values are good; true for unknown metrics.
func (a *TrendAnalyzer) HigherIsBetter(metric string) bool {
	higherIsBetter, ok := a.polarity[strings.ToLower(strings.TrimSpace(metric))]
	if !ok {
		return true
	}
	return higherIsBetter
}

// Analyze fits sample index against value and classifies direction.
// Direction comes from percent change between the first and last sample:
// inside the stable band it is stable; otherwise the raw sign is mapped
// through the metric's polarity so a rising error rate reads as declining.
// Params: entity/metric identity, oldest-first samples, and computation time.
// Returns: trend estimate; fewer than two samples yield stable with 0 confidence.
func (a *TrendAnalyzer) Analyze(entity, metric string, samples []domain.MetricSample, now time.Time) domain.TrendEstimate {
	estimate := domain.TrendEstimate{
		Entity:     entity,
		Metric:     metric,
		Direction:  domain.TrendStable,
		ComputedAt: now,
	}
	if len(samples) > 0 {
		estimate.WindowStart = samples[0].At
		estimate.WindowEnd = samples[len(samples)-1].At
	}
	if len(samples) < 2 {
		return estimate
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, sample := range samples {
		xs[i] = float64(i)
		ys[i] = sample.Value
	}

	fit, ok := LinearRegression(xs, ys)
	if !ok {
		return estimate
	}
	estimate.Slope = fit.Slope
	estimate.Confidence = clamp(fit.R2, 0, 1)
	estimate.PercentChange = percentChange(samples[0].Value, samples[len(samples)-1].Value)
	estimate.Direction = a.direction(metric, estimate.PercentChange)
	estimate.Forecast = forecast(fit, len(samples), a.forecastSteps)
	return estimate
}

// direction classifies percent change through the stable band and polarity.
// Params: metric name and first-to-last percent change.
// Returns: polarity-adjusted trend direction.
func (a *TrendAnalyzer) direction(metric string, percent float64) domain.TrendDirection {
	if math.Abs(percent) < a.stableBandPct {
		return domain.TrendStable
	}
	rising := percent > 0
	if rising == a.HigherIsBetter(metric) {
		return domain.TrendImproving
	}
	return domain.TrendDeclining
}

// percentChange computes first-to-last relative change in percent.
// Params: first and last sample values.
// Returns: 0 when the first value is 0 (no meaningful base).
func percentChange(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return (last - first) / math.Abs(first) * 100
}

// forecast projects the fitted line forward past the window.
// Params: regression fit, sample count, and step count.
// Returns: projected values for indices n .. n+steps-1.
func forecast(fit Regression, sampleCount, steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	out := make([]float64, steps)
	for i := 0; i < steps; i++ {
		x := float64(sampleCount + i)
		out[i] = fit.Slope*x + fit.Intercept
	}
	return out
}
