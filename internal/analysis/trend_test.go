package analysis

import (
	"testing"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
)

func analyzerForTest(higherIsBetter map[string]bool) *TrendAnalyzer {
	return NewTrendAnalyzer(config.AnalysisConfig{
		StableBandPct:  5,
		ForecastSteps:  5,
		HigherIsBetter: higherIsBetter,
	})
}

func TestAnalyzePerfectLine(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]domain.MetricSample, 10)
	for i := range samples {
		samples[i] = domain.MetricSample{At: base.Add(time.Duration(i) * time.Minute), Value: 2*float64(i) + 1}
	}

	estimate := analyzerForTest(nil).Analyze("fn", "requests_per_sec", samples, base.Add(time.Hour))
	if !almostEqual(estimate.Slope, 2) {
		t.Fatalf("slope = %v, want 2", estimate.Slope)
	}
	if !almostEqual(estimate.Confidence, 1) {
		t.Fatalf("confidence = %v, want 1 for a perfect fit", estimate.Confidence)
	}
	if estimate.Direction != domain.TrendImproving {
		t.Fatalf("direction = %q, want improving for rising throughput", estimate.Direction)
	}
	// Change from 1 to 19 is 1800 percent.
	if !almostEqual(estimate.PercentChange, 1800) {
		t.Fatalf("percent change = %v, want 1800", estimate.PercentChange)
	}
	if len(estimate.Forecast) != 5 {
		t.Fatalf("forecast length = %d, want 5", len(estimate.Forecast))
	}
	// First forecast point is x=10 on y=2x+1.
	if !almostEqual(estimate.Forecast[0], 21) {
		t.Fatalf("forecast[0] = %v, want 21", estimate.Forecast[0])
	}
	if !almostEqual(estimate.Forecast[4], 29) {
		t.Fatalf("forecast[4] = %v, want 29", estimate.Forecast[4])
	}
	if estimate.WindowStart != samples[0].At || estimate.WindowEnd != samples[9].At {
		t.Fatal("window bounds must come from first and last samples")
	}
}

func TestAnalyzeRisingErrorRateDeclines(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := []domain.MetricSample{
		{At: base, Value: 1},
		{At: base.Add(time.Minute), Value: 2},
		{At: base.Add(2 * time.Minute), Value: 3},
	}

	estimate := analyzerForTest(nil).Analyze("fn", "error_rate", samples, base)
	if estimate.Direction != domain.TrendDeclining {
		t.Fatalf("direction = %q, want declining: rising error rate is bad", estimate.Direction)
	}
}

func TestAnalyzeStableBand(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// 3 percent change, inside the 5 percent band.
	samples := []domain.MetricSample{
		{At: base, Value: 100},
		{At: base.Add(time.Minute), Value: 101},
		{At: base.Add(2 * time.Minute), Value: 103},
	}

	estimate := analyzerForTest(nil).Analyze("fn", "memory_mb", samples, base)
	if estimate.Direction != domain.TrendStable {
		t.Fatalf("direction = %q, want stable inside the band", estimate.Direction)
	}
}

func TestAnalyzeTooFewSamples(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	estimate := analyzerForTest(nil).Analyze("fn", "cpu_percent", []domain.MetricSample{{At: base, Value: 9}}, base)
	if estimate.Direction != domain.TrendStable || estimate.Confidence != 0 || estimate.Slope != 0 {
		t.Fatalf("single sample must yield stable/0/0, got %+v", estimate)
	}
	if estimate.Forecast != nil {
		t.Fatal("single sample must not forecast")
	}
}

func TestAnalyzeZeroFirstValueHasZeroPercentChange(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := []domain.MetricSample{
		{At: base, Value: 0},
		{At: base.Add(time.Minute), Value: 50},
	}
	estimate := analyzerForTest(nil).Analyze("fn", "requests_per_sec", samples, base)
	if estimate.PercentChange != 0 {
		t.Fatalf("percent change from zero base = %v, want 0", estimate.PercentChange)
	}
	if estimate.Direction != domain.TrendStable {
		t.Fatalf("direction = %q, want stable when percent change is 0", estimate.Direction)
	}
}

func TestHigherIsBetterPolarity(t *testing.T) {
	t.Parallel()

	analyzer := analyzerForTest(map[string]bool{"Cache_Hit_Rate": true, "error_rate": true})

	if analyzer.HigherIsBetter("execution_time_ms") {
		t.Fatal("execution time defaults to lower-is-better")
	}
	if !analyzer.HigherIsBetter("made_up_metric") {
		t.Fatal("unknown metrics default to higher-is-better")
	}
	if !analyzer.HigherIsBetter("cache_hit_rate") {
		t.Fatal("config override must apply case-insensitively")
	}
	if !analyzer.HigherIsBetter("error_rate") {
		t.Fatal("config override must win over the built-in table")
	}
}
