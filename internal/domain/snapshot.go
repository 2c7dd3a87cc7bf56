package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MetricCategory scopes named metrics inside one snapshot.
// Params: performance/quality/business constants.
// Returns: category key for rule-scoped metric lookup.
type MetricCategory string

const (
	// CategoryPerformance scopes latency/throughput style metrics.
	CategoryPerformance MetricCategory = "performance"
	// CategoryQuality scopes reliability style metrics.
	CategoryQuality MetricCategory = "quality"
	// CategoryBusiness scopes product/revenue style metrics.
	CategoryBusiness MetricCategory = "business"
)

// IsValid reports whether category is one of the known constants.
// Params: none.
// Returns: true for performance/quality/business.
func (c MetricCategory) IsValid() bool {
	switch c {
	case CategoryPerformance, CategoryQuality, CategoryBusiness:
		return true
	default:
		return false
	}
}

// FunctionSample is one per-function execution measurement set.
// Params: function name and execution metrics for one reporting interval.
// Returns: sample consumed by buffers and the scaling advisor.
type FunctionSample struct {
	Name            string  `json:"name"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
	MemoryMB        float64 `json:"memory_mb"`
	CPUPercent      float64 `json:"cpu_percent"`
	ErrorRate       float64 `json:"error_rate"`
	RequestsPerSec  float64 `json:"requests_per_sec"`
	Concurrency     float64 `json:"concurrency"`
	ColdStarts      float64 `json:"cold_starts"`
	Retries         float64 `json:"retries"`
	Instances       int     `json:"instances"`
}

// MetricSnapshot is one normalized periodic metrics payload.
// Params: snapshot timestamp, category-scoped metric maps, and function samples.
// Returns: validated input for rule evaluation and analysis buffers.
type MetricSnapshot struct {
	DT          int64              `json:"dt"`
	Performance map[string]float64 `json:"performance"`
	Quality     map[string]float64 `json:"quality"`
	Business    map[string]float64 `json:"business"`
	Functions   []FunctionSample   `json:"functions,omitempty"`
}

// SnapshotTime converts milliseconds unix timestamp into UTC time.
// Params: snapshot timestamp in unix milliseconds.
// Returns: converted UTC time.
func (s MetricSnapshot) SnapshotTime() time.Time {
	return time.UnixMilli(s.DT).UTC()
}

// categoryMetrics maps each category onto its snapshot accessor.
// One entry per category; adding a category means adding one accessor here.
var categoryMetrics = map[MetricCategory]func(MetricSnapshot) map[string]float64{
	CategoryPerformance: func(s MetricSnapshot) map[string]float64 { return s.Performance },
	CategoryQuality:     func(s MetricSnapshot) map[string]float64 { return s.Quality },
	CategoryBusiness:    func(s MetricSnapshot) map[string]float64 { return s.Business },
}

// Metric resolves one named metric inside one category scope.
// Params: category scope and metric name.
// Returns: metric value and presence flag; absence means "no signal", not zero.
func (s MetricSnapshot) Metric(category MetricCategory, name string) (float64, bool) {
	accessor, ok := categoryMetrics[category]
	if !ok {
		return 0, false
	}
	values := accessor(s)
	if values == nil {
		return 0, false
	}
	value, exists := values[name]
	return value, exists
}

// DecodeSnapshot decodes and validates one snapshot payload.
// Params: JSON document bytes.
// Returns: validated snapshot or decode/validation error.
func DecodeSnapshot(raw []byte) (MetricSnapshot, error) {
	var snapshot MetricSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return MetricSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return MetricSnapshot{}, err
	}
	return snapshot, nil
}

// Validate validates one snapshot against the contract.
// Params: snapshot fields parsed from transport.
// Returns: validation error when schema is violated.
func (s MetricSnapshot) Validate() error {
	if s.DT <= 0 {
		return errors.New("dt must be >0")
	}
	if len(s.Performance) == 0 && len(s.Quality) == 0 && len(s.Business) == 0 && len(s.Functions) == 0 {
		return errors.New("snapshot must contain at least one metric category or function sample")
	}
	for i, sample := range s.Functions {
		if strings.TrimSpace(sample.Name) == "" {
			return fmt.Errorf("functions[%d]: name is required", i)
		}
		if sample.ErrorRate < 0 || sample.ErrorRate > 1 {
			return fmt.Errorf("functions[%d]: error_rate must be within [0,1]", i)
		}
	}
	return nil
}

// MetricSample is one timestamped scalar owned by a rolling buffer.
// Params: sample time and value.
// Returns: buffer element for anomaly/trend analysis.
type MetricSample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}
