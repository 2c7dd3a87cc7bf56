package engine

import (
	"testing"
	"time"
)

func TestSampleBufferEvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	set := NewBufferSet(3)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		set.Append("fn", "execution_time_ms", base.Add(time.Duration(i)*time.Minute), float64(i))
	}

	samples := set.Samples("fn", "execution_time_ms")
	if len(samples) != 3 {
		t.Fatalf("expected 3 retained samples, got %d", len(samples))
	}
	for i, want := range []float64{2, 3, 4} {
		if samples[i].Value != want {
			t.Fatalf("samples[%d] = %v, want %v (oldest must be evicted first)", i, samples[i].Value, want)
		}
	}
}

func TestBufferSetDefaultCapacity(t *testing.T) {
	t.Parallel()

	set := NewBufferSet(0)
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		set.Append("platform", "success_rate", at.Add(time.Duration(i)*time.Second), float64(i))
	}
	if got := len(set.Samples("platform", "success_rate")); got != 100 {
		t.Fatalf("default capacity must be 100, got %d retained", got)
	}
}

func TestBufferKeyRoundTrip(t *testing.T) {
	t.Parallel()

	entity, metric := SplitBufferKey(BufferKey("checkout/eu", "error_rate"))
	if entity != "checkout/eu" || metric != "error_rate" {
		t.Fatalf("round trip broke: %q %q", entity, metric)
	}
}

func TestCompactEvictsIdleBuffers(t *testing.T) {
	t.Parallel()

	set := NewBufferSet(10)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	set.Append("stale", "cpu_percent", base, 1)
	set.Append("fresh", "cpu_percent", base.Add(50*time.Minute), 2)

	removed := set.Compact(base.Add(time.Hour), 30*time.Minute)
	if removed != 1 {
		t.Fatalf("expected 1 evicted buffer, got %d", removed)
	}
	if set.Samples("stale", "cpu_percent") != nil {
		t.Fatal("stale buffer must be gone")
	}
	if set.Samples("fresh", "cpu_percent") == nil {
		t.Fatal("fresh buffer must survive")
	}

	if set.Compact(base.Add(2*time.Hour), 0) != 0 {
		t.Fatal("zero TTL must disable compaction")
	}
}
