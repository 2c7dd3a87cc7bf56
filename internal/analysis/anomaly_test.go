package analysis

import (
	"testing"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
)

func detectorForTest() *AnomalyDetector {
	return NewAnomalyDetector(config.AnalysisConfig{
		RecentWindow:       20,
		MinHistory:         10,
		DeviationThreshold: 2.0,
	})
}

func sampleSeries(values []float64) []domain.MetricSample {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]domain.MetricSample, len(values))
	for i, value := range values {
		samples[i] = domain.MetricSample{At: base.Add(time.Duration(i) * time.Minute), Value: value}
	}
	return samples
}

func TestDetectFlagsCriticalDeviation(t *testing.T) {
	t.Parallel()

	// Historical: mean 50, population stddev 5. Recent: mean 100.
	values := []float64{45, 55, 45, 55, 45, 55, 45, 55, 45, 55}
	for i := 0; i < 20; i++ {
		values = append(values, 100)
	}
	now := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	record, flagged := detectorForTest().Detect("fn-a", "execution_time_ms", sampleSeries(values), now)
	if !flagged {
		t.Fatal("deviation 10 must be flagged")
	}
	if !almostEqual(record.Deviation, 10) {
		t.Fatalf("deviation = %v, want 10", record.Deviation)
	}
	if record.Severity != domain.SeverityCritical {
		t.Fatalf("severity = %q, want critical", record.Severity)
	}
	if !almostEqual(record.Expected, 50) || !almostEqual(record.Observed, 100) {
		t.Fatalf("expected/observed = %v/%v, want 50/100", record.Expected, record.Observed)
	}
	if record.RecommendedAction != "scale_up_instances" {
		t.Fatalf("action = %q, want scale_up_instances for deviation > 3", record.RecommendedAction)
	}
	if record.DetectedAt != now {
		t.Fatalf("detected at = %v, want %v", record.DetectedAt, now)
	}
}

func TestDetectZeroStdDevNeverFlags(t *testing.T) {
	t.Parallel()

	values := make([]float64, 10)
	for i := range values {
		values[i] = 50
	}
	for i := 0; i < 20; i++ {
		values = append(values, 500)
	}

	_, flagged := detectorForTest().Detect("fn-a", "error_rate", sampleSeries(values), time.Now().UTC())
	if flagged {
		t.Fatal("flat historical baseline must yield deviation 0, never an anomaly")
	}
}

func TestDetectSkipsShortHistory(t *testing.T) {
	t.Parallel()

	// 9 historical + 20 recent: one short of the minimum history.
	values := []float64{45, 55, 45, 55, 45, 55, 45, 55, 45}
	for i := 0; i < 20; i++ {
		values = append(values, 100)
	}
	if _, flagged := detectorForTest().Detect("fn-a", "memory_mb", sampleSeries(values), time.Now().UTC()); flagged {
		t.Fatal("detection must be skipped below minimum history")
	}
}

func TestDetectSeverityBands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		deviation float64
		want      domain.Severity
	}{
		{10, domain.SeverityCritical},
		{5.0, domain.SeverityHigh},
		{3.0, domain.SeverityMedium},
		{2.5, domain.SeverityMedium},
		{2.0, domain.SeverityLow},
	}
	for _, tc := range cases {
		if got := deviationSeverity(tc.deviation); got != tc.want {
			t.Fatalf("deviationSeverity(%v) = %q, want %q", tc.deviation, got, tc.want)
		}
	}
}

func TestRecommendedActionByMetric(t *testing.T) {
	t.Parallel()

	if got := recommendedAction("execution_time_ms", 2.5); got != "optimize_code" {
		t.Fatalf("mild execution-time deviation action = %q, want optimize_code", got)
	}
	if got := recommendedAction("error_rate", 4); got != "rollback_deployment" {
		t.Fatalf("strong error-rate deviation action = %q, want rollback_deployment", got)
	}
	if got := recommendedAction("unknown_metric", 9); got != "" {
		t.Fatalf("unknown metric must yield no action, got %q", got)
	}
}
