package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"monitoring/internal/domain"
)

// SampleBuffer is a fixed-capacity FIFO of metric samples.
// Params: capacity cap and ordered sample slice.
// Returns: rolling window for one (entity, metric) pair.
type SampleBuffer struct {
	capacity int
	samples  []domain.MetricSample
}

// newSampleBuffer creates one buffer with positive capacity.
// Params: maximum retained sample count.
// Returns: empty buffer.
func newSampleBuffer(capacity int) *SampleBuffer {
	return &SampleBuffer{
		capacity: capacity,
		samples:  make([]domain.MetricSample, 0, capacity),
	}
}

// Append adds one sample, evicting the oldest once capacity is reached.
// Params: sample to retain.
// Returns: buffer mutated in place.
func (b *SampleBuffer) Append(sample domain.MetricSample) {
	if len(b.samples) >= b.capacity {
		drop := len(b.samples) - b.capacity + 1
		copy(b.samples, b.samples[drop:])
		b.samples = b.samples[:len(b.samples)-drop]
	}
	b.samples = append(b.samples, sample)
}

// Len returns current sample count.
// Params: none.
// Returns: number of retained samples.
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}

// Snapshot returns a detached copy of the retained samples.
// Params: none.
// Returns: oldest-first sample slice copy.
func (b *SampleBuffer) Snapshot() []domain.MetricSample {
	out := make([]domain.MetricSample, len(b.samples))
	copy(out, b.samples)
	return out
}

// last returns the newest sample time.
// Params: none.
// Returns: zero time for empty buffers.
func (b *SampleBuffer) last() time.Time {
	if len(b.samples) == 0 {
		return time.Time{}
	}
	return b.samples[len(b.samples)-1].At
}

// BufferSet owns rolling buffers keyed by (entity, metric).
// Buffers are process-local detection state; derived records are what
// gets persisted, never the buffers themselves.
// Params: shared capacity and keyed buffer map.
// Returns: concurrent-safe buffer registry.
type BufferSet struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*SampleBuffer
}

// NewBufferSet creates buffer registry with shared per-buffer capacity.
// Params: per-buffer capacity (values <=0 fall back to 100).
// Returns: initialized registry.
func NewBufferSet(capacity int) *BufferSet {
	if capacity <= 0 {
		capacity = 100
	}
	return &BufferSet{
		capacity: capacity,
		buffers:  make(map[string]*SampleBuffer),
	}
}

// BufferKey builds the registry key for one entity/metric pair.
// Params: entity and metric names.
// Returns: composite key string.
func BufferKey(entity, metric string) string {
	return entity + "/" + metric
}

// SplitBufferKey splits a registry key back into entity and metric.
// Params: composite key produced by BufferKey.
// Returns: entity and metric names (metric empty for malformed keys).
func SplitBufferKey(key string) (string, string) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}

// Append records one sample for an entity/metric pair.
// Params: entity, metric, sample time, and value.
// Returns: buffer created on first use and mutated in place.
func (s *BufferSet) Append(entity, metric string, at time.Time, value float64) {
	key := BufferKey(entity, metric)
	s.mu.Lock()
	defer s.mu.Unlock()
	buffer, ok := s.buffers[key]
	if !ok {
		buffer = newSampleBuffer(s.capacity)
		s.buffers[key] = buffer
	}
	buffer.Append(domain.MetricSample{At: at, Value: value})
}

// Samples returns a detached sample copy for one entity/metric pair.
// Params: entity and metric names.
// Returns: sample slice copy; nil when the buffer does not exist.
func (s *BufferSet) Samples(entity, metric string) []domain.MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buffer, ok := s.buffers[BufferKey(entity, metric)]
	if !ok {
		return nil
	}
	return buffer.Snapshot()
}

// Keys returns sorted registry keys.
// Params: none.
// Returns: deterministic key list for analysis passes.
func (s *BufferSet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buffers))
	for key := range s.buffers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Compact evicts buffers whose newest sample is older than idle TTL.
// Params: current time and idle TTL threshold (<=0 disables eviction).
// Returns: number of evicted buffers.
func (s *BufferSet) Compact(now time.Time, idleTTL time.Duration) int {
	if idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, buffer := range s.buffers {
		last := buffer.last()
		if last.IsZero() {
			continue
		}
		if now.Sub(last) < idleTTL {
			continue
		}
		delete(s.buffers, key)
		removed++
	}
	return removed
}
