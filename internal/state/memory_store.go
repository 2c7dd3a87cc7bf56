package state

import (
	"context"
	"sort"
	"strings"
	"sync"

	"monitoring/internal/domain"
)

// MemoryStore keeps alert state in process memory for single-instance mode.
// Params: in-memory maps for instances and slices for derived records.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu              sync.RWMutex
	instances       map[string]memoryInstance
	anomalies       []domain.AnomalyRecord
	trends          []domain.TrendEstimate
	recommendations []domain.ScalingRecommendation
}

type memoryInstance struct {
	instance domain.AlertInstance
	revision uint64
}

// NewMemoryStore creates in-memory state store.
// Params: none.
// Returns: initialized in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]memoryInstance),
	}
}

// GetInstance returns instance payload and revision.
// Params: alert ID key.
// Returns: stored instance, revision, or ErrNotFound.
func (s *MemoryStore) GetInstance(_ context.Context, alertID string) (domain.AlertInstance, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.instances[alertID]
	if !ok {
		return domain.AlertInstance{}, 0, ErrNotFound
	}
	return entry.instance, entry.revision, nil
}

// PutInstance writes instance payload unconditionally.
// Params: alert ID key and instance payload.
// Returns: new revision.
func (s *MemoryStore) PutInstance(_ context.Context, alertID string, instance domain.AlertInstance) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev := s.instances[alertID].revision + 1
	s.instances[alertID] = memoryInstance{instance: instance, revision: rev}
	return rev, nil
}

// UpdateInstance updates instance payload using expected revision CAS.
// Params: alert ID key, expected revision, and replacement payload.
// Returns: new revision or ErrConflict.
func (s *MemoryStore) UpdateInstance(_ context.Context, alertID string, expectedRevision uint64, instance domain.AlertInstance) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.instances[alertID]
	if !ok {
		return 0, ErrNotFound
	}
	if entry.revision != expectedRevision {
		return 0, ErrConflict
	}
	rev := expectedRevision + 1
	s.instances[alertID] = memoryInstance{instance: instance, revision: rev}
	return rev, nil
}

// ListAlertIDs lists all stored alert IDs.
// Params: none.
// Returns: sorted alert ID list.
func (s *MemoryStore) ListAlertIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instances))
	for key := range s.instances {
		ids = append(ids, key)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAlertIDsByRule lists alert IDs by rule namespace prefix.
// Params: rule name namespace.
// Returns: matching alert IDs.
func (s *MemoryStore) ListAlertIDsByRule(_ context.Context, ruleName string) ([]string, error) {
	prefix := "rule/" + strings.ToLower(strings.TrimSpace(ruleName)) + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for key := range s.instances {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, key)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendAnomaly appends one anomaly record.
// Params: immutable anomaly record.
// Returns: nil (in-memory append).
func (s *MemoryStore) AppendAnomaly(_ context.Context, record domain.AnomalyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, record)
	return nil
}

// AppendTrend appends one trend estimate.
// Params: trend estimate from the latest analysis pass.
// Returns: nil (in-memory append).
func (s *MemoryStore) AppendTrend(_ context.Context, estimate domain.TrendEstimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends = append(s.trends, estimate)
	return nil
}

// AppendRecommendation appends one scaling recommendation.
// Params: advisory scaling record.
// Returns: nil (in-memory append).
func (s *MemoryStore) AppendRecommendation(_ context.Context, recommendation domain.ScalingRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = append(s.recommendations, recommendation)
	return nil
}

// Anomalies returns a copy of appended anomaly records.
// Params: none.
// Returns: detached record slice.
func (s *MemoryStore) Anomalies() []domain.AnomalyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnomalyRecord, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

// Trends returns a copy of appended trend estimates.
// Params: none.
// Returns: detached estimate slice.
func (s *MemoryStore) Trends() []domain.TrendEstimate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TrendEstimate, len(s.trends))
	copy(out, s.trends)
	return out
}

// Recommendations returns a copy of appended scaling recommendations.
// Params: none.
// Returns: detached recommendation slice.
func (s *MemoryStore) Recommendations() []domain.ScalingRecommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScalingRecommendation, len(s.recommendations))
	copy(out, s.recommendations)
	return out
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
