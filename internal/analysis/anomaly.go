package analysis

import (
	"math"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
)

// AnomalyDetector flags recent-window deviation from historical baseline.
// Params: window sizes and deviation threshold from analysis config.
// Returns: stateless detector operating on buffer snapshots.
type AnomalyDetector struct {
	recentWindow int
	minHistory   int
	threshold    float64
}

// NewAnomalyDetector creates detector from analysis settings.
// Params: defaulted analysis config section.
// Returns: initialized detector.
func NewAnomalyDetector(cfg config.AnalysisConfig) *AnomalyDetector {
	return &AnomalyDetector{
		recentWindow: cfg.RecentWindow,
		minHistory:   cfg.MinHistory,
		threshold:    cfg.DeviationThreshold,
	}
}

// Detect compares the recent window of one buffer against its history.
// The buffer splits into the last recentWindow samples and everything
// before them; detection is skipped until the historical part reaches
// minHistory samples. A zero historical stddev yields deviation 0 so a
// perfectly flat baseline never divides by zero or flags an anomaly.
// Params: entity/metric identity, oldest-first samples, and detection time.
// Returns: one anomaly record and true when deviation exceeds the threshold.
func (d *AnomalyDetector) Detect(entity, metric string, samples []domain.MetricSample, now time.Time) (domain.AnomalyRecord, bool) {
	if len(samples) < d.recentWindow+d.minHistory {
		return domain.AnomalyRecord{}, false
	}

	split := len(samples) - d.recentWindow
	historical := values(samples[:split])
	recent := values(samples[split:])

	historicalMean := Mean(historical)
	historicalStdDev := StdDev(historical)
	recentMean := Mean(recent)

	deviation := 0.0
	if historicalStdDev > 0 {
		deviation = math.Abs(recentMean-historicalMean) / historicalStdDev
	}
	if deviation <= d.threshold {
		return domain.AnomalyRecord{}, false
	}

	return domain.AnomalyRecord{
		Entity:            entity,
		Metric:            metric,
		Observed:          recentMean,
		Expected:          historicalMean,
		Deviation:         deviation,
		Severity:          deviationSeverity(deviation),
		RecommendedAction: recommendedAction(metric, deviation),
		DetectedAt:        now,
	}, true
}

// deviationSeverity maps deviation magnitude onto severity.
// Params: deviation in historical standard deviations.
// Returns: severity band.
func deviationSeverity(deviation float64) domain.Severity {
	switch {
	case deviation > 5:
		return domain.SeverityCritical
	case deviation > 3:
		return domain.SeverityHigh
	case deviation > 2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// actionRule binds one metric to its deviation-dependent remediation.
// Params: threshold separating the strong remediation from the mild one.
// Returns: action name per deviation magnitude.
type actionRule struct {
	strongAbove float64
	strong      string
	mild        string
}

// actionRules maps well-known metric names onto remediation hints.
var actionRules = map[string]actionRule{
	"execution_time_ms": {strongAbove: 3, strong: "scale_up_instances", mild: "optimize_code"},
	"concurrency":       {strongAbove: 3, strong: "scale_up_instances", mild: "review_capacity"},
	"error_rate":        {strongAbove: 3, strong: "rollback_deployment", mild: "investigate_errors"},
	"memory_mb":         {strongAbove: 3, strong: "increase_memory", mild: "profile_memory"},
	"cold_starts":       {strongAbove: 3, strong: "enable_warm_pool", mild: "review_provisioning"},
}

// recommendedAction derives a remediation hint for one flagged metric.
// Params: metric name and deviation magnitude.
// Returns: action name or empty string for metrics without a rule.
func recommendedAction(metric string, deviation float64) string {
	rule, ok := actionRules[metric]
	if !ok {
		return ""
	}
	if deviation > rule.strongAbove {
		return rule.strong
	}
	return rule.mild
}

// values projects sample slice onto raw float values.
// Params: timestamped samples.
// Returns: value slice in the same order.
func values(samples []domain.MetricSample) []float64 {
	out := make([]float64, len(samples))
	for i, sample := range samples {
		out[i] = sample.Value
	}
	return out
}
