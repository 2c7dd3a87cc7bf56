package domain

import "time"

// AnomalyRecord is one statistical deviation finding.
// Params: entity/metric identity, observed vs expected values, and derived severity.
// Returns: immutable record appended to the derived-record store.
type AnomalyRecord struct {
	Entity            string    `json:"entity"`
	Metric            string    `json:"metric"`
	Observed          float64   `json:"observed"`
	Expected          float64   `json:"expected"`
	Deviation         float64   `json:"deviation"`
	Severity          Severity  `json:"severity"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	DetectedAt        time.Time `json:"detected_at"`
}

// TrendDirection classifies estimated metric movement.
// Params: improving/declining/stable constants.
// Returns: polarity-adjusted direction label.
type TrendDirection string

const (
	// TrendImproving marks movement toward the metric's good side.
	TrendImproving TrendDirection = "improving"
	// TrendDeclining marks movement toward the metric's bad side.
	TrendDeclining TrendDirection = "declining"
	// TrendStable marks movement within the stable band.
	TrendStable TrendDirection = "stable"
)

// TrendEstimate is one regression pass result over a metric window.
// Params: entity/metric identity, fit quality, and short forecast.
// Returns: latest-snapshot estimate; recomputed on every analysis pass.
type TrendEstimate struct {
	Entity        string         `json:"entity"`
	Metric        string         `json:"metric"`
	Direction     TrendDirection `json:"direction"`
	PercentChange float64        `json:"percent_change"`
	Confidence    float64        `json:"confidence"`
	Slope         float64        `json:"slope"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	Forecast      []float64      `json:"forecast,omitempty"`
	ComputedAt    time.Time      `json:"computed_at"`
}

// ScalingRecommendation proposes one instance-count change for an entity.
// Params: deterministic id, current/target counts, and gating metadata.
// Returns: advisory record; enactment is gated outside this type.
type ScalingRecommendation struct {
	ID                 string    `json:"id"`
	Entity             string    `json:"entity"`
	CurrentInstances   int       `json:"current_instances"`
	TargetInstances    int       `json:"target_instances"`
	Reason             string    `json:"reason"`
	Confidence         float64   `json:"confidence"`
	EstimatedCostDelta float64   `json:"estimated_cost_delta"`
	AutoApply          bool      `json:"auto_apply"`
	CreatedAt          time.Time `json:"created_at"`
}
