package analysis

import (
	"strings"
	"testing"
	"time"

	"monitoring/internal/config"
)

func advisorForTest(autoApply bool, maxCostDelta float64) *ScalingAdvisor {
	return NewScalingAdvisor(config.ScalingConfig{
		HighLatencyMS:   1000,
		LoadConcurrency: 50,
		AutoApply:       autoApply,
		MaxCostDelta:    maxCostDelta,
	})
}

func TestRecommendRequiresBothGates(t *testing.T) {
	t.Parallel()

	advisor := advisorForTest(false, 0)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		load EntityLoad
		want bool
	}{
		{"latency only", EntityLoad{AvgExecutionTimeMS: 2000, AvgConcurrency: 10, CurrentInstances: 2}, false},
		{"concurrency only", EntityLoad{AvgExecutionTimeMS: 500, AvgConcurrency: 90, CurrentInstances: 2}, false},
		{"both at threshold", EntityLoad{AvgExecutionTimeMS: 1000, AvgConcurrency: 50, CurrentInstances: 2}, false},
		{"both above", EntityLoad{AvgExecutionTimeMS: 1500, AvgConcurrency: 80, CurrentInstances: 2}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := advisor.Recommend("checkout", tc.load, now); ok != tc.want {
				t.Fatalf("Recommend = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestRecommendTargetAndCost(t *testing.T) {
	t.Parallel()

	advisor := advisorForTest(false, 0)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	load := EntityLoad{AvgExecutionTimeMS: 1500, AvgConcurrency: 80, CurrentInstances: 4}

	recommendation, ok := advisor.Recommend("checkout", load, now)
	if !ok {
		t.Fatal("expected a recommendation")
	}
	if recommendation.TargetInstances != 6 {
		t.Fatalf("target = %d, want ceil(4*1.5)=6", recommendation.TargetInstances)
	}
	if recommendation.EstimatedCostDelta != 50 {
		t.Fatalf("cost delta = %v, want 2 instances * 25", recommendation.EstimatedCostDelta)
	}
	if recommendation.AutoApply {
		t.Fatal("auto-apply disabled in config must stay off")
	}
	if !strings.HasPrefix(recommendation.ID, "scale-") {
		t.Fatalf("unexpected recommendation ID %q", recommendation.ID)
	}
}

func TestRecommendZeroInstancesStillGrows(t *testing.T) {
	t.Parallel()

	advisor := advisorForTest(false, 0)
	load := EntityLoad{AvgExecutionTimeMS: 1500, AvgConcurrency: 80, CurrentInstances: 0}

	recommendation, ok := advisor.Recommend("checkout", load, time.Now().UTC())
	if !ok {
		t.Fatal("expected a recommendation")
	}
	if recommendation.CurrentInstances != 1 {
		t.Fatalf("current = %d, want floor of 1", recommendation.CurrentInstances)
	}
	if recommendation.TargetInstances <= recommendation.CurrentInstances {
		t.Fatalf("target %d must exceed current %d", recommendation.TargetInstances, recommendation.CurrentInstances)
	}
}

func TestRecommendAutoApplyCostGate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	load := EntityLoad{AvgExecutionTimeMS: 1500, AvgConcurrency: 80, CurrentInstances: 4}

	// Delta is 50; ceiling 100 allows auto-apply, ceiling 50 does not.
	generous, _ := advisorForTest(true, 100).Recommend("checkout", load, now)
	if !generous.AutoApply {
		t.Fatal("auto-apply must fire below the cost ceiling")
	}
	tight, _ := advisorForTest(true, 50).Recommend("checkout", load, now)
	if tight.AutoApply {
		t.Fatal("auto-apply must stay off when the delta reaches the ceiling")
	}
}

func TestRecommendationIDIsDeterministic(t *testing.T) {
	t.Parallel()

	advisor := advisorForTest(false, 0)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	load := EntityLoad{AvgExecutionTimeMS: 1500, AvgConcurrency: 80, CurrentInstances: 4}

	first, _ := advisor.Recommend("checkout", load, now)
	second, _ := advisor.Recommend("checkout", load, now.Add(time.Hour))
	if first.ID != second.ID {
		t.Fatalf("same load state must yield the same ID: %q vs %q", first.ID, second.ID)
	}

	other, _ := advisor.Recommend("payments", load, now)
	if other.ID == first.ID {
		t.Fatal("different entities must yield different IDs")
	}
}
