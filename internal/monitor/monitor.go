package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"monitoring/internal/analysis"
	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/dispatchq"
	"monitoring/internal/domain"
	"monitoring/internal/engine"
	"monitoring/internal/lifecycle"
	"monitoring/internal/state"
)

// platformEntity keys category-level snapshot metrics in the buffers.
const platformEntity = "platform"

// TriggerResult is the structured outcome of one manual trigger.
// Params: per-stage results and skip flag.
// Returns: JSON body for the admin trigger endpoint.
type TriggerResult struct {
	Ran         bool                       `json:"ran"`
	Check       lifecycle.CheckResult      `json:"check"`
	Escalation  lifecycle.EscalationResult `json:"escalation"`
	Suppression SuppressionResult          `json:"suppression"`
	Analysis    AnalysisResult             `json:"analysis"`
}

// SuppressionResult summarizes one suppression scan.
// Params: per-outcome counters.
// Returns: structured result for logs and the admin trigger path.
type SuppressionResult struct {
	Reactivated int `json:"reactivated"`
	Resolved    int `json:"resolved"`
}

// AnalysisResult summarizes one analysis pass.
// Params: per-concern counters.
// Returns: structured result for logs and the admin trigger path.
type AnalysisResult struct {
	Anomalies       int `json:"anomalies"`
	Trends          int `json:"trends"`
	Recommendations int `json:"recommendations"`
	Errors          int `json:"errors"`
}

// Monitor owns evaluation state for one process: the rule lifecycle,
// the rolling buffers, and the statistical analyzers. Snapshot pushes
// feed the buffers and immediately run a check pass; scheduled ticks
// rerun checks, escalations, and analysis on their own cadences.
// Overlapping passes are skipped, not queued.
// Params: lifecycle manager, buffers, analyzers, and pass guards.
// Returns: per-process evaluation coordinator.
type Monitor struct {
	serviceCfg  config.ServiceConfig
	analysisCfg config.AnalysisConfig

	manager  *lifecycle.Manager
	store    state.Store
	buffers  *engine.BufferSet
	detector *analysis.AnomalyDetector
	trends   *analysis.TrendAnalyzer
	advisor  *analysis.ScalingAdvisor
	producer dispatchq.Producer
	channels []string
	clk      clock.Clock
	logger   *slog.Logger

	evalBusy     atomic.Bool
	analysisBusy atomic.Bool

	mu           sync.RWMutex
	lastSnapshot *domain.MetricSnapshot
	applied      map[string]bool
}

// New creates the monitor from configured collaborators.
// The channel list names the configured notify channels that anomaly
// and scaling findings fan out to.
// Params: config sections, lifecycle manager, store, producer, channels, clock, and logger.
// Returns: initialized monitor.
func New(
	serviceCfg config.ServiceConfig,
	analysisCfg config.AnalysisConfig,
	manager *lifecycle.Manager,
	store state.Store,
	producer dispatchq.Producer,
	channels []string,
	clk clock.Clock,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		serviceCfg:  serviceCfg,
		analysisCfg: analysisCfg,
		manager:     manager,
		store:       store,
		buffers:     engine.NewBufferSet(serviceCfg.BufferCapacity),
		detector:    analysis.NewAnomalyDetector(analysisCfg),
		trends:      analysis.NewTrendAnalyzer(analysisCfg),
		advisor:     analysis.NewScalingAdvisor(analysisCfg.Scaling),
		producer:    producer,
		channels:    channels,
		clk:         clk,
		logger:      logger,
		applied:     make(map[string]bool),
	}
}

// Manager exposes the lifecycle manager for operator endpoints.
// Params: none.
// Returns: owned manager.
func (m *Monitor) Manager() *lifecycle.Manager {
	return m.manager
}

// PushSnapshot validates, buffers, and evaluates one snapshot.
// Params: context and decoded snapshot.
// Returns: check result and validation error.
func (m *Monitor) PushSnapshot(ctx context.Context, snapshot domain.MetricSnapshot) (lifecycle.CheckResult, error) {
	if err := snapshot.Validate(); err != nil {
		return lifecycle.CheckResult{}, err
	}

	m.feedBuffers(snapshot)
	m.mu.Lock()
	copied := snapshot
	m.lastSnapshot = &copied
	m.mu.Unlock()

	result, ran := m.RunChecks(ctx)
	if !ran && m.logger != nil {
		m.logger.Warn("snapshot accepted but check pass already running, evaluation skipped", "dt", snapshot.DT)
	}
	return result, nil
}

// feedBuffers appends snapshot metrics into the rolling buffers.
// Category metrics land under the platform entity; function samples
// land under their function name, one buffer per metric kind.
// Params: validated snapshot.
// Returns: nothing.
func (m *Monitor) feedBuffers(snapshot domain.MetricSnapshot) {
	at := snapshot.SnapshotTime()
	for _, category := range []map[string]float64{snapshot.Performance, snapshot.Quality, snapshot.Business} {
		for name, value := range category {
			m.buffers.Append(platformEntity, name, at, value)
		}
	}
	for _, sample := range snapshot.Functions {
		m.buffers.Append(sample.Name, "execution_time_ms", at, sample.ExecutionTimeMS)
		m.buffers.Append(sample.Name, "memory_mb", at, sample.MemoryMB)
		m.buffers.Append(sample.Name, "cpu_percent", at, sample.CPUPercent)
		m.buffers.Append(sample.Name, "error_rate", at, sample.ErrorRate)
		m.buffers.Append(sample.Name, "requests_per_sec", at, sample.RequestsPerSec)
		m.buffers.Append(sample.Name, "concurrency", at, sample.Concurrency)
		m.buffers.Append(sample.Name, "cold_starts", at, sample.ColdStarts)
		m.buffers.Append(sample.Name, "retries", at, sample.Retries)
	}
}

// LastSnapshot returns the most recent accepted snapshot.
// Params: none.
// Returns: snapshot copy or nil before the first push.
func (m *Monitor) LastSnapshot() *domain.MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastSnapshot == nil {
		return nil
	}
	copied := *m.lastSnapshot
	return &copied
}

// RunChecks evaluates rules against the latest snapshot.
// Params: context.
// Returns: check result and false when the pass was skipped.
func (m *Monitor) RunChecks(ctx context.Context) (lifecycle.CheckResult, bool) {
	if !m.evalBusy.CompareAndSwap(false, true) {
		return lifecycle.CheckResult{}, false
	}
	defer m.evalBusy.Store(false)

	snapshot := m.LastSnapshot()
	if snapshot == nil {
		return lifecycle.CheckResult{}, true
	}
	result := m.manager.CheckAlerts(ctx, *snapshot)
	if m.logger != nil && (result.Triggered > 0 || result.Resolved > 0 || result.Errors > 0) {
		m.logger.Info("check pass finished",
			"triggered", result.Triggered, "resolved", result.Resolved,
			"skipped", result.Skipped, "errors", result.Errors)
	}
	return result, true
}

// RunEscalations walks escalation ladders once.
// Params: context.
// Returns: escalation result and false when the pass was skipped.
func (m *Monitor) RunEscalations(ctx context.Context) (lifecycle.EscalationResult, bool) {
	if !m.evalBusy.CompareAndSwap(false, true) {
		return lifecycle.EscalationResult{}, false
	}
	defer m.evalBusy.Store(false)

	result := m.manager.ProcessEscalations(ctx)
	if m.logger != nil && (result.Escalated > 0 || result.Errors > 0) {
		m.logger.Info("escalation pass finished", "escalated", result.Escalated, "errors", result.Errors)
	}
	return result, true
}

// RunSuppressionScan re-examines expired suppressions once.
// Params: context.
// Returns: reactivated/resolved counters and false when skipped.
func (m *Monitor) RunSuppressionScan(ctx context.Context) (int, int, bool) {
	if !m.evalBusy.CompareAndSwap(false, true) {
		return 0, 0, false
	}
	defer m.evalBusy.Store(false)

	reactivated, resolved := m.manager.ScanSuppressed(ctx, m.LastSnapshot())
	if m.logger != nil && (reactivated > 0 || resolved > 0) {
		m.logger.Info("suppression scan finished", "reactivated", reactivated, "resolved", resolved)
	}
	return reactivated, resolved, true
}

// RunAnalysis runs anomaly, trend, and scaling passes over the buffers.
// Params: context.
// Returns: analysis result and false when the pass was skipped.
func (m *Monitor) RunAnalysis(ctx context.Context) (AnalysisResult, bool) {
	if !m.analysisBusy.CompareAndSwap(false, true) {
		return AnalysisResult{}, false
	}
	defer m.analysisBusy.Store(false)

	result := AnalysisResult{}
	now := m.clk.Now()

	for _, key := range m.buffers.Keys() {
		entity, metric := engine.SplitBufferKey(key)
		samples := m.buffers.Samples(entity, metric)
		if len(samples) == 0 {
			continue
		}

		if record, flagged := m.detector.Detect(entity, metric, samples, now); flagged {
			if err := m.store.AppendAnomaly(ctx, record); err != nil {
				result.Errors++
				if m.logger != nil {
					m.logger.Error("anomaly append failed", "entity", entity, "metric", metric, "error", err.Error())
				}
			} else {
				result.Anomalies++
				m.notifyAnomaly(ctx, record)
			}
		}

		estimate := m.trends.Analyze(entity, metric, samples, now)
		if err := m.store.AppendTrend(ctx, estimate); err != nil {
			result.Errors++
			if m.logger != nil {
				m.logger.Error("trend append failed", "entity", entity, "metric", metric, "error", err.Error())
			}
		} else {
			result.Trends++
		}
	}

	m.runScalingPass(ctx, now, &result)

	idleTTL := time.Duration(m.serviceCfg.BufferIdleSec) * time.Second
	if removed := m.buffers.Compact(now, idleTTL); removed > 0 && m.logger != nil {
		m.logger.Debug("idle buffers compacted", "removed", removed)
	}
	return result, true
}

// runScalingPass evaluates the scaling advisor for every function entity.
// Params: current time and result accumulator.
// Returns: counters mutated in place.
func (m *Monitor) runScalingPass(ctx context.Context, now time.Time, result *AnalysisResult) {
	snapshot := m.LastSnapshot()
	if snapshot == nil {
		return
	}
	window := m.analysisCfg.RecentWindow

	for _, sample := range snapshot.Functions {
		load := analysis.EntityLoad{
			AvgExecutionTimeMS: recentAverage(m.buffers.Samples(sample.Name, "execution_time_ms"), window),
			AvgConcurrency:     recentAverage(m.buffers.Samples(sample.Name, "concurrency"), window),
			AvgRequestsPerSec:  recentAverage(m.buffers.Samples(sample.Name, "requests_per_sec"), window),
			CurrentInstances:   sample.Instances,
		}
		recommendation, ok := m.advisor.Recommend(sample.Name, load, now)
		if !ok {
			continue
		}

		m.mu.Lock()
		alreadyApplied := m.applied[recommendation.ID]
		m.mu.Unlock()
		if alreadyApplied {
			continue
		}

		if err := m.store.AppendRecommendation(ctx, recommendation); err != nil {
			result.Errors++
			if m.logger != nil {
				m.logger.Error("recommendation append failed", "entity", sample.Name, "error", err.Error())
			}
			continue
		}
		result.Recommendations++
		m.notifyScaling(ctx, recommendation)

		if recommendation.AutoApply {
			m.enqueueScaleUp(ctx, recommendation)
		}
		m.mu.Lock()
		m.applied[recommendation.ID] = true
		m.mu.Unlock()
	}
}

// TriggerNow runs check, escalation, suppression, and analysis passes
// immediately.
// Params: context.
// Returns: structured result; Ran is false when an evaluation pass was
// already in flight and the trigger was skipped.
func (m *Monitor) TriggerNow(ctx context.Context) TriggerResult {
	result := TriggerResult{}
	check, ran := m.RunChecks(ctx)
	if !ran {
		return result
	}
	result.Ran = true
	result.Check = check
	result.Escalation, _ = m.RunEscalations(ctx)
	reactivated, resolved, _ := m.RunSuppressionScan(ctx)
	result.Suppression = SuppressionResult{Reactivated: reactivated, Resolved: resolved}
	result.Analysis, _ = m.RunAnalysis(ctx)
	return result
}

// notifyAnomaly fans one anomaly record out to accepting channels.
// Params: flagged anomaly record.
// Returns: nothing; enqueue failures are logged inside enqueue.
func (m *Monitor) notifyAnomaly(ctx context.Context, record domain.AnomalyRecord) {
	message := fmt.Sprintf("anomaly on %s/%s: observed %.4g, expected %.4g (%.1f sigma)",
		record.Entity, record.Metric, record.Observed, record.Expected, record.Deviation)
	notification := domain.Notification{
		Source:    domain.SourceAnomaly,
		Severity:  record.Severity,
		Metric:    record.Metric,
		Entity:    record.Entity,
		Value:     record.Observed,
		Message:   message,
		Timestamp: record.DetectedAt,
	}
	m.broadcast(ctx, notification)
}

// notifyScaling fans one scaling recommendation out to accepting channels.
// Params: emitted recommendation.
// Returns: nothing.
func (m *Monitor) notifyScaling(ctx context.Context, recommendation domain.ScalingRecommendation) {
	message := fmt.Sprintf("scaling recommendation for %s: %d -> %d instances (%s)",
		recommendation.Entity, recommendation.CurrentInstances, recommendation.TargetInstances, recommendation.Reason)
	notification := domain.Notification{
		Source:    domain.SourceScaling,
		Severity:  domain.SeverityMedium,
		Entity:    recommendation.Entity,
		Value:     float64(recommendation.TargetInstances),
		Message:   message,
		Timestamp: recommendation.CreatedAt,
	}
	m.broadcast(ctx, notification)
}

// broadcast enqueues one notification for every accepting channel.
// Channel severity filters apply here, the same way the alert fan-out
// path filters; the dispatcher re-checks on send.
// Params: notification payload without channel binding.
// Returns: nothing.
func (m *Monitor) broadcast(ctx context.Context, notification domain.Notification) {
	if m.producer == nil {
		return
	}
	for _, channel := range m.channels {
		if !m.manager.Accepts(channel, notification.Severity) {
			continue
		}
		job := dispatchq.Job{
			Kind:         dispatchq.KindNotification,
			Channel:      channel,
			Notification: notification,
			CreatedAt:    notification.Timestamp,
		}
		job.ID = dispatchq.BuildJobID(job.Kind, channel, "", notification)
		if err := m.producer.Enqueue(ctx, job); err != nil && m.logger != nil {
			m.logger.Error("dispatch enqueue failed", "job_id", job.ID, "channel", channel, "error", err.Error())
		}
	}
}

// enqueueScaleUp enqueues the auto-apply action for one recommendation.
// Params: recommendation that passed the confidence and cost gates.
// Returns: nothing.
func (m *Monitor) enqueueScaleUp(ctx context.Context, recommendation domain.ScalingRecommendation) {
	if m.producer == nil {
		return
	}
	notification := domain.Notification{
		Source:    domain.SourceScaling,
		Severity:  domain.SeverityMedium,
		Entity:    recommendation.Entity,
		Value:     float64(recommendation.TargetInstances),
		Message:   recommendation.Reason,
		Timestamp: recommendation.CreatedAt,
	}
	job := dispatchq.Job{
		ID:           recommendation.ID,
		Kind:         dispatchq.KindAction,
		Action:       "scale_up_instances",
		Entity:       recommendation.Entity,
		Notification: notification,
		CreatedAt:    recommendation.CreatedAt,
	}
	if err := m.producer.Enqueue(ctx, job); err != nil && m.logger != nil {
		m.logger.Error("auto-apply enqueue failed", "recommendation_id", recommendation.ID, "error", err.Error())
	}
}

// recentAverage computes the mean over the tail of one sample slice.
// Params: oldest-first samples and tail window size.
// Returns: mean of up to window newest samples; 0 for empty input.
func recentAverage(samples []domain.MetricSample, window int) float64 {
	if len(samples) == 0 {
		return 0
	}
	if window <= 0 || window > len(samples) {
		window = len(samples)
	}
	tail := samples[len(samples)-window:]
	sum := 0.0
	for _, sample := range tail {
		sum += sample.Value
	}
	return sum / float64(len(tail))
}
