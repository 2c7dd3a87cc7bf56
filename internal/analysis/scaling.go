package analysis

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
)

const (
	scaleUpMultiplier = 1.5
	// scaleConfidence is fixed: the gate is a coarse latency+load
	// heuristic, not a fitted model.
	scaleConfidence    = 0.85
	autoApplyThreshold = 0.8
	costPerInstance    = 25.0
)

// EntityLoad aggregates recent load averages for one scalable entity.
// Params: recent-window averages and current instance count.
// Returns: advisor input snapshot.
type EntityLoad struct {
	AvgExecutionTimeMS float64
	AvgConcurrency     float64
	AvgRequestsPerSec  float64
	CurrentInstances   int
}

// ScalingAdvisor emits instance-count recommendations under sustained load.
// Params: latency/load gates and auto-apply policy from config.
// Returns: stateless advisor.
type ScalingAdvisor struct {
	highLatencyMS   float64
	loadConcurrency float64
	autoApply       bool
	maxCostDelta    float64
}

// NewScalingAdvisor creates advisor from scaling settings.
// Params: defaulted scaling config section.
// Returns: initialized advisor.
func NewScalingAdvisor(cfg config.ScalingConfig) *ScalingAdvisor {
	return &ScalingAdvisor{
		highLatencyMS:   cfg.HighLatencyMS,
		loadConcurrency: cfg.LoadConcurrency,
		autoApply:       cfg.AutoApply,
		maxCostDelta:    cfg.MaxCostDelta,
	}
}

// Recommend gates on combined high latency and high concurrency.
// Both averages must exceed their thresholds; latency alone can mean a
// slow dependency and concurrency alone is absorbed by existing
// capacity. The recommendation ID is a digest of entity and counts, so
// a replayed pass over the same load state produces the same ID and
// stays idempotent downstream.
// Params: entity name, recent load averages, and recommendation time.
// Returns: advisory recommendation and true when both gates trip.
func (a *ScalingAdvisor) Recommend(entity string, load EntityLoad, now time.Time) (domain.ScalingRecommendation, bool) {
	if load.AvgExecutionTimeMS <= a.highLatencyMS || load.AvgConcurrency <= a.loadConcurrency {
		return domain.ScalingRecommendation{}, false
	}

	current := load.CurrentInstances
	if current < 1 {
		current = 1
	}
	target := int(math.Ceil(float64(current) * scaleUpMultiplier))
	if target <= current {
		target = current + 1
	}
	costDelta := float64(target-current) * costPerInstance

	recommendation := domain.ScalingRecommendation{
		ID:               recommendationID(entity, current, target),
		Entity:           entity,
		CurrentInstances: current,
		TargetInstances:  target,
		Reason: fmt.Sprintf("avg execution time %.0fms > %.0fms and avg concurrency %.1f > %.1f",
			load.AvgExecutionTimeMS, a.highLatencyMS, load.AvgConcurrency, a.loadConcurrency),
		Confidence:         scaleConfidence,
		EstimatedCostDelta: costDelta,
		CreatedAt:          now,
	}
	recommendation.AutoApply = a.autoApply &&
		recommendation.Confidence > autoApplyThreshold &&
		costDelta < a.maxCostDelta
	return recommendation, true
}

// recommendationID derives deterministic recommendation identity.
// Params: entity name and instance counts.
// Returns: short hex digest stable across replays.
func recommendationID(entity string, current, target int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", entity, current, target)))
	return "scale-" + hex.EncodeToString(sum[:8])
}
