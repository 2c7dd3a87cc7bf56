package domain

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeSnapshot(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"dt": 1785585600000,
		"performance": {"p95_latency_ms": 850.5},
		"quality": {"success_rate": 0.97},
		"functions": [
			{"name": "checkout", "execution_time_ms": 120, "error_rate": 0.01, "instances": 3}
		]
	}`)

	snapshot, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !snapshot.SnapshotTime().Equal(want) {
		t.Fatalf("snapshot time = %v, want %v", snapshot.SnapshotTime(), want)
	}
	if len(snapshot.Functions) != 1 || snapshot.Functions[0].Instances != 3 {
		t.Fatalf("functions = %+v", snapshot.Functions)
	}
}

func TestDecodeSnapshotRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{`, "decode snapshot"},
		{"missing dt", `{"performance": {"x": 1}}`, "dt must be >0"},
		{"empty payload", `{"dt": 1}`, "at least one metric"},
		{"nameless function", `{"dt": 1, "functions": [{"execution_time_ms": 1}]}`, "name is required"},
		{"error rate out of range", `{"dt": 1, "functions": [{"name": "f", "error_rate": 1.5}]}`, "error_rate"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeSnapshot([]byte(tc.raw))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestSnapshotMetricLookup(t *testing.T) {
	t.Parallel()

	snapshot := MetricSnapshot{
		DT:          1,
		Performance: map[string]float64{"p95_latency_ms": 900},
		Business:    map[string]float64{"orders_per_min": 0},
	}

	if value, ok := snapshot.Metric(CategoryPerformance, "p95_latency_ms"); !ok || value != 900 {
		t.Fatalf("performance lookup = %v %v", value, ok)
	}
	// Present with value zero is a signal, not an absence.
	if value, ok := snapshot.Metric(CategoryBusiness, "orders_per_min"); !ok || value != 0 {
		t.Fatalf("zero-value lookup = %v %v", value, ok)
	}
	if _, ok := snapshot.Metric(CategoryQuality, "success_rate"); ok {
		t.Fatal("nil category map must miss")
	}
	if _, ok := snapshot.Metric("infrastructure", "p95_latency_ms"); ok {
		t.Fatal("unknown category must miss")
	}
}

func TestSeverityRankAndStatusOpen(t *testing.T) {
	t.Parallel()

	if SeverityCritical.Rank() <= SeverityHigh.Rank() || SeverityHigh.Rank() <= SeverityMedium.Rank() {
		t.Fatal("severity ranks must be ordered")
	}
	if Severity("panic").IsValid() {
		t.Fatal("unknown severity must be invalid")
	}

	if !StatusActive.IsOpen() || !StatusAcknowledged.IsOpen() {
		t.Fatal("active and acknowledged are open")
	}
	if StatusResolved.IsOpen() || StatusSuppressed.IsOpen() {
		t.Fatal("resolved and suppressed are not open")
	}
}
