package state

import (
	"context"
	"errors"

	"monitoring/internal/domain"
)

var (
	// ErrNotFound indicates absent alert instance.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates revision mismatch for CAS update.
	ErrConflict = errors.New("revision conflict")
)

// Store provides alert instance persistence and derived-record sinks.
// Instances are keyed by alert ID and updated through CAS revisions so
// concurrent passes cannot lose escalation/status writes. Derived
// records (anomalies, trends, scaling recommendations) are append-only.
// Params: CRUD operations for instances and append operations for derived records.
// Returns: backend persistence behavior.
type Store interface {
	GetInstance(ctx context.Context, alertID string) (domain.AlertInstance, uint64, error)
	PutInstance(ctx context.Context, alertID string, instance domain.AlertInstance) (uint64, error)
	UpdateInstance(ctx context.Context, alertID string, expectedRevision uint64, instance domain.AlertInstance) (uint64, error)
	ListAlertIDs(ctx context.Context) ([]string, error)
	ListAlertIDsByRule(ctx context.Context, ruleName string) ([]string, error)
	AppendAnomaly(ctx context.Context, record domain.AnomalyRecord) error
	AppendTrend(ctx context.Context, estimate domain.TrendEstimate) error
	AppendRecommendation(ctx context.Context, recommendation domain.ScalingRecommendation) error
	Close() error
}
