package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"monitoring/internal/actions"
	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/dispatchq"
	"monitoring/internal/domain"
	"monitoring/internal/engine"
	"monitoring/internal/notify"
	"monitoring/internal/state"
)

// casAttempts bounds optimistic-concurrency retries on instance updates.
const casAttempts = 5

// CheckResult summarizes one checkAlerts pass.
// Params: per-outcome counters and created alert IDs.
// Returns: structured result for logs and the admin trigger path.
type CheckResult struct {
	Triggered    int      `json:"triggered"`
	Resolved     int      `json:"resolved"`
	Skipped      int      `json:"skipped"`
	Errors       int      `json:"errors"`
	TriggeredIDs []string `json:"triggered_ids,omitempty"`
}

// EscalationResult summarizes one processEscalations pass.
// Params: per-outcome counters.
// Returns: structured result for logs and the admin trigger path.
type EscalationResult struct {
	Escalated int `json:"escalated"`
	Errors    int `json:"errors"`
}

// Manager owns the alert instance lifecycle.
// It evaluates rules against snapshots, creates and resolves instances,
// walks escalation ladders, and applies operator transitions. All
// instance writes go through the store's CAS revisions so a concurrent
// operator action never loses an escalation write.
// Params: state store, dispatch producer, notify/action executors, and rule cache.
// Returns: single-writer lifecycle coordinator; passes must not overlap.
type Manager struct {
	store  state.Store
	runner *actions.Runner
	clk    clock.Clock
	logger *slog.Logger

	mu         sync.RWMutex
	rules      []config.RuleConfig
	producer   dispatchq.Producer
	dispatcher *notify.Dispatcher
}

// NewManager creates lifecycle manager with an initial rule cache.
// Params: collaborators and enabled rule list from config.
// Returns: initialized manager.
func NewManager(
	store state.Store,
	producer dispatchq.Producer,
	dispatcher *notify.Dispatcher,
	runner *actions.Runner,
	clk clock.Clock,
	logger *slog.Logger,
	rules []config.RuleConfig,
) *Manager {
	m := &Manager{
		store:      store,
		producer:   producer,
		dispatcher: dispatcher,
		runner:     runner,
		clk:        clk,
		logger:     logger,
	}
	m.SetRules(rules)
	return m
}

// SetProducer swaps the dispatch producer; the composition root wires
// it after the queue worker exists, and reloads may replace it.
// Params: replacement producer.
// Returns: nothing.
func (m *Manager) SetProducer(producer dispatchq.Producer) {
	m.mu.Lock()
	m.producer = producer
	m.mu.Unlock()
}

// SetDispatcher swaps the notification dispatcher on config reload.
// Params: replacement dispatcher.
// Returns: nothing.
func (m *Manager) SetDispatcher(dispatcher *notify.Dispatcher) {
	m.mu.Lock()
	m.dispatcher = dispatcher
	m.mu.Unlock()
}

// getProducer reads the current dispatch producer.
func (m *Manager) getProducer() dispatchq.Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producer
}

// getDispatcher reads the current notification dispatcher.
func (m *Manager) getDispatcher() *notify.Dispatcher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dispatcher
}

// Accepts reports whether the current dispatcher admits a severity on
// one channel. Fan-out paths outside the manager share the same filter
// through this accessor.
// Params: channel key and candidate severity.
// Returns: true when no dispatcher is wired, matching fanOut.
func (m *Manager) Accepts(channel string, severity domain.Severity) bool {
	dispatcher := m.getDispatcher()
	if dispatcher == nil {
		return true
	}
	return dispatcher.Accepts(channel, severity)
}

// SetRules swaps the rule cache; used by config hot reload.
// Params: replacement rule list.
// Returns: nothing; disabled rules are filtered out.
func (m *Manager) SetRules(rules []config.RuleConfig) {
	enabled := make([]config.RuleConfig, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	m.mu.Lock()
	m.rules = enabled
	m.mu.Unlock()
}

// Rules returns a copy of the active rule cache.
// Params: none.
// Returns: detached rule slice.
func (m *Manager) Rules() []config.RuleConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.RuleConfig, len(m.rules))
	copy(out, m.rules)
	return out
}

// CheckAlerts evaluates every enabled rule against one snapshot.
// Rule failures are isolated: a store error on one rule logs, counts,
// and moves on so a single bad rule never aborts the pass.
// Params: context and decoded metric snapshot.
// Returns: pass counters; never an error.
func (m *Manager) CheckAlerts(ctx context.Context, snapshot domain.MetricSnapshot) CheckResult {
	result := CheckResult{}
	for _, rule := range m.Rules() {
		outcome, err := m.checkRule(ctx, rule, snapshot)
		if err != nil {
			result.Errors++
			if m.logger != nil {
				m.logger.Error("rule check failed", "rule", rule.Name, "error", err.Error())
			}
			continue
		}
		switch outcome.kind {
		case ruleTriggered:
			result.Triggered++
			result.TriggeredIDs = append(result.TriggeredIDs, outcome.alertID)
		case ruleResolved:
			result.Resolved++
		default:
			result.Skipped++
		}
	}
	return result
}

type ruleOutcomeKind int

const (
	ruleSkipped ruleOutcomeKind = iota
	ruleTriggered
	ruleResolved
)

type ruleOutcome struct {
	kind    ruleOutcomeKind
	alertID string
}

// checkRule evaluates one rule and applies the dedup/cooldown ladder.
// Params: rule definition and current snapshot.
// Returns: outcome classification or store error.
func (m *Manager) checkRule(ctx context.Context, rule config.RuleConfig, snapshot domain.MetricSnapshot) (ruleOutcome, error) {
	value, ok := snapshot.Metric(rule.MetricCategory(), rule.Metric)
	if !ok {
		// Missing metric means no signal this pass, not a failure.
		return ruleOutcome{kind: ruleSkipped}, nil
	}

	fired := engine.Evaluate(value, rule.RuleOperator(), rule.Threshold)

	open, openRev, newestCreated, err := m.ruleInstanceState(ctx, rule.Name)
	if err != nil {
		return ruleOutcome{}, err
	}

	now := m.clk.Now()
	if fired {
		if open != nil {
			// Dedup: one open instance per rule; the existing one stays untouched.
			return ruleOutcome{kind: ruleSkipped}, nil
		}
		if !newestCreated.IsZero() && now.Sub(newestCreated) < rule.Cooldown() {
			return ruleOutcome{kind: ruleSkipped}, nil
		}
		alertID, err := m.createInstance(ctx, rule, value, now)
		if err != nil {
			return ruleOutcome{}, err
		}
		return ruleOutcome{kind: ruleTriggered, alertID: alertID}, nil
	}

	if open == nil {
		return ruleOutcome{kind: ruleSkipped}, nil
	}
	if err := m.resolveInstance(ctx, rule, *open, openRev, "condition_resolved", now); err != nil {
		return ruleOutcome{}, err
	}
	return ruleOutcome{kind: ruleResolved}, nil
}

// ruleInstanceState loads open-instance and cooldown context for one rule.
// Params: rule name.
// Returns: open instance with its revision (nil when none) and newest creation time.
func (m *Manager) ruleInstanceState(ctx context.Context, ruleName string) (*domain.AlertInstance, uint64, time.Time, error) {
	ids, err := m.store.ListAlertIDsByRule(ctx, ruleName)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("list instances for rule %q: %w", ruleName, err)
	}

	var open *domain.AlertInstance
	var openRev uint64
	var newestCreated time.Time
	for _, id := range ids {
		instance, rev, err := m.store.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				continue
			}
			return nil, 0, time.Time{}, fmt.Errorf("get instance %q: %w", id, err)
		}
		if instance.CreatedAt.After(newestCreated) {
			newestCreated = instance.CreatedAt
		}
		if instance.Status.IsOpen() && open == nil {
			copied := instance
			open = &copied
			openRev = rev
		}
	}
	return open, openRev, newestCreated, nil
}

// createInstance persists a new active instance and fans out its responses.
// Params: firing rule, observed value, and creation time.
// Returns: new alert ID or store error.
func (m *Manager) createInstance(ctx context.Context, rule config.RuleConfig, value float64, now time.Time) (string, error) {
	alertID := BuildAlertID(rule.Name, now)
	message := rule.Message
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("%s: %s is %.4g (%s %.4g)", rule.Name, rule.Metric, value, rule.Operator, rule.Threshold)
	}

	instance := domain.AlertInstance{
		AlertID:   alertID,
		RuleName:  rule.Name,
		Status:    domain.StatusActive,
		Severity:  rule.RuleSeverity(),
		Category:  rule.MetricCategory(),
		Metric:    rule.Metric,
		Value:     value,
		Threshold: rule.Threshold,
		Message:   message,
		CreatedAt: now,
	}
	if _, err := m.store.PutInstance(ctx, alertID, instance); err != nil {
		return "", fmt.Errorf("put instance %q: %w", alertID, err)
	}

	m.fanOut(ctx, instance, rule.Channels, rule.Actions)
	return alertID, nil
}

// resolveInstance closes one open instance with a cause.
// Params: owning rule, instance with revision, close cause, and time.
// Returns: store error; CAS conflicts are retried against fresh reads.
func (m *Manager) resolveInstance(ctx context.Context, rule config.RuleConfig, instance domain.AlertInstance, revision uint64, cause string, now time.Time) error {
	resolved := instance
	resolved.Status = domain.StatusResolved
	resolved.ResolvedAt = &now
	resolved.ResolveCause = cause

	if _, err := m.store.UpdateInstance(ctx, instance.AlertID, revision, resolved); err != nil {
		if !errors.Is(err, state.ErrConflict) {
			return fmt.Errorf("resolve instance %q: %w", instance.AlertID, err)
		}
		if err := m.mutateInstance(ctx, instance.AlertID, func(current *domain.AlertInstance) bool {
			if !current.Status.IsOpen() {
				return false
			}
			current.Status = domain.StatusResolved
			current.ResolvedAt = &now
			current.ResolveCause = cause
			return true
		}); err != nil {
			return err
		}
	}

	m.fanOut(ctx, resolved, rule.Channels, nil)
	return nil
}

// ProcessEscalations walks escalation ladders for open instances.
// At most one step applies per instance per pass, so severity climbs
// one level per cycle even when several steps are overdue.
// Params: context.
// Returns: pass counters; never an error.
func (m *Manager) ProcessEscalations(ctx context.Context) EscalationResult {
	result := EscalationResult{}
	ruleIndex := m.ruleIndex()

	ids, err := m.store.ListAlertIDs(ctx)
	if err != nil {
		result.Errors++
		if m.logger != nil {
			m.logger.Error("escalation pass list failed", "error", err.Error())
		}
		return result
	}

	now := m.clk.Now()
	for _, id := range ids {
		instance, rev, err := m.store.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				continue
			}
			result.Errors++
			if m.logger != nil {
				m.logger.Error("escalation read failed", "alert_id", id, "error", err.Error())
			}
			continue
		}
		if !instance.Status.IsOpen() {
			continue
		}
		rule, ok := ruleIndex[strings.ToLower(instance.RuleName)]
		if !ok || len(rule.Escalation) == 0 {
			continue
		}

		stepIndex, step, ok := dueStep(rule, instance, now)
		if !ok {
			continue
		}

		escalated := instance
		escalated.EscalationLevel = stepIndex + 1
		if severity := domain.Severity(step.Severity); severity.IsValid() {
			escalated.Severity = severity
		}
		if _, err := m.store.UpdateInstance(ctx, id, rev, escalated); err != nil {
			result.Errors++
			if m.logger != nil {
				m.logger.Error("escalation write failed", "alert_id", id, "error", err.Error())
			}
			continue
		}
		result.Escalated++

		channels := step.Channels
		if len(channels) == 0 {
			channels = rule.Channels
		}
		m.fanOut(ctx, escalated, channels, step.Actions)
	}
	return result
}

// dueStep finds the first overdue escalation step above the current level.
// Params: rule ladder, instance, and current time.
// Returns: step index, step, and true when one applies.
func dueStep(rule config.RuleConfig, instance domain.AlertInstance, now time.Time) (int, config.EscalationStepConfig, bool) {
	age := now.Sub(instance.CreatedAt)
	for i, step := range rule.Escalation {
		if age >= step.TriggerAfter() && i+1 > instance.EscalationLevel {
			return i, step, true
		}
	}
	return 0, config.EscalationStepConfig{}, false
}

// Acknowledge transitions one active instance to acknowledged.
// Params: alert ID and acknowledging operator.
// Returns: state.ErrNotFound or transition error.
func (m *Manager) Acknowledge(ctx context.Context, alertID, by string) error {
	now := m.clk.Now()
	return m.transition(ctx, alertID, func(instance *domain.AlertInstance) error {
		if instance.Status != domain.StatusActive {
			return fmt.Errorf("alert %q is %s, not active", alertID, instance.Status)
		}
		instance.Status = domain.StatusAcknowledged
		instance.AcknowledgedAt = &now
		instance.AcknowledgedBy = by
		return nil
	})
}

// Resolve transitions one non-resolved instance to resolved.
// Params: alert ID and close cause; empty cause records "manual".
// Returns: state.ErrNotFound or transition error.
func (m *Manager) Resolve(ctx context.Context, alertID, cause string) error {
	if strings.TrimSpace(cause) == "" {
		cause = "manual"
	}
	now := m.clk.Now()
	return m.transition(ctx, alertID, func(instance *domain.AlertInstance) error {
		if instance.Status == domain.StatusResolved {
			return fmt.Errorf("alert %q is already resolved", alertID)
		}
		instance.Status = domain.StatusResolved
		instance.ResolvedAt = &now
		instance.ResolveCause = cause
		return nil
	})
}

// Suppress mutes one open instance until an expiry.
// Params: alert ID and suppression duration.
// Returns: state.ErrNotFound or transition error.
func (m *Manager) Suppress(ctx context.Context, alertID string, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("suppress duration must be positive")
	}
	until := m.clk.Now().Add(duration)
	return m.transition(ctx, alertID, func(instance *domain.AlertInstance) error {
		if !instance.Status.IsOpen() {
			return fmt.Errorf("alert %q is %s, not open", alertID, instance.Status)
		}
		instance.Status = domain.StatusSuppressed
		instance.SuppressedUntil = &until
		return nil
	})
}

// ScanSuppressed re-examines suppressed instances whose expiry passed.
// The condition is re-evaluated against the latest snapshot: still
// firing reactivates the instance, otherwise it resolves. Without a
// snapshot the instance reactivates so an expired mute never hides a
// possibly live condition.
// Params: context and latest snapshot (nil when none seen yet).
// Returns: reactivated and resolved counters.
func (m *Manager) ScanSuppressed(ctx context.Context, snapshot *domain.MetricSnapshot) (int, int) {
	ruleIndex := m.ruleIndex()
	reactivated := 0
	resolved := 0

	ids, err := m.store.ListAlertIDs(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("suppression scan list failed", "error", err.Error())
		}
		return 0, 0
	}

	now := m.clk.Now()
	for _, id := range ids {
		instance, rev, err := m.store.GetInstance(ctx, id)
		if err != nil {
			continue
		}
		if instance.Status != domain.StatusSuppressed {
			continue
		}
		if instance.SuppressedUntil == nil || instance.SuppressedUntil.After(now) {
			continue
		}

		stillFiring := true
		rule, hasRule := ruleIndex[strings.ToLower(instance.RuleName)]
		if hasRule && snapshot != nil {
			if value, ok := snapshot.Metric(rule.MetricCategory(), rule.Metric); ok {
				stillFiring = engine.Evaluate(value, rule.RuleOperator(), rule.Threshold)
			}
		}

		updated := instance
		updated.SuppressedUntil = nil
		if stillFiring {
			updated.Status = domain.StatusActive
		} else {
			updated.Status = domain.StatusResolved
			updated.ResolvedAt = &now
			updated.ResolveCause = "condition_resolved"
		}
		if _, err := m.store.UpdateInstance(ctx, id, rev, updated); err != nil {
			if m.logger != nil {
				m.logger.Error("suppression scan write failed", "alert_id", id, "error", err.Error())
			}
			continue
		}
		if stillFiring {
			reactivated++
		} else {
			resolved++
		}
	}
	return reactivated, resolved
}

// CleanupRemovedRules resolves non-resolved instances whose rule no
// longer exists in the cache. Config reload calls this after swapping
// rules so an orphaned instance never stays open with nothing left to
// evaluate or escalate it.
// Params: context.
// Returns: count of instances resolved with cause "rule_removed".
func (m *Manager) CleanupRemovedRules(ctx context.Context) int {
	index := m.ruleIndex()

	ids, err := m.store.ListAlertIDs(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("rule cleanup list failed", "error", err.Error())
		}
		return 0
	}

	now := m.clk.Now()
	cleaned := 0
	for _, id := range ids {
		instance, _, err := m.store.GetInstance(ctx, id)
		if err != nil {
			continue
		}
		if instance.Status == domain.StatusResolved {
			continue
		}
		if _, ok := index[strings.ToLower(instance.RuleName)]; ok {
			continue
		}
		if err := m.mutateInstance(ctx, id, func(current *domain.AlertInstance) bool {
			if current.Status == domain.StatusResolved {
				return false
			}
			current.Status = domain.StatusResolved
			current.ResolvedAt = &now
			current.ResolveCause = "rule_removed"
			current.SuppressedUntil = nil
			return true
		}); err != nil {
			if m.logger != nil {
				m.logger.Error("rule cleanup write failed", "alert_id", id, "error", err.Error())
			}
			continue
		}
		cleaned++
		if m.logger != nil {
			m.logger.Info("orphaned instance resolved", "alert_id", id, "rule", instance.RuleName)
		}
	}
	return cleaned
}

// ProcessJob executes one dequeued dispatch job and records its outcome.
// Send and action failures on alert-bound jobs land in the instance's
// own audit log with success=false and are not returned, keeping the
// queue contract best-effort. Jobs without an alert ID (anomaly and
// scaling notifications) return their error so the queue retry and DLQ
// policy applies.
// Params: context and dequeued job.
// Returns: error only for unrecordable failures.
func (m *Manager) ProcessJob(ctx context.Context, job dispatchq.Job) error {
	now := m.clk.Now()
	switch job.Kind {
	case dispatchq.KindNotification:
		var sendErr error
		if dispatcher := m.getDispatcher(); dispatcher != nil {
			sendErr = dispatcher.Send(ctx, job.Channel, job.Notification)
		} else {
			sendErr = errors.New("no dispatcher configured")
		}
		if job.AlertID == "" {
			return sendErr
		}
		record := domain.NotificationRecord{Channel: job.Channel, At: now, Success: sendErr == nil}
		if sendErr != nil {
			record.Error = sendErr.Error()
			if m.logger != nil {
				m.logger.Warn("notification failed", "alert_id", job.AlertID, "channel", job.Channel, "error", sendErr.Error())
			}
		}
		return m.mutateInstance(ctx, job.AlertID, func(instance *domain.AlertInstance) bool {
			instance.Notifications = append(instance.Notifications, record)
			return true
		})
	case dispatchq.KindAction:
		var runErr error
		if m.runner != nil {
			runErr = m.runner.Run(ctx, job.Action, job.Entity, job.AlertID)
		} else {
			runErr = errors.New("no action runner configured")
		}
		if job.AlertID == "" {
			return runErr
		}
		record := domain.ActionRecord{Action: job.Action, At: now, Success: runErr == nil}
		if runErr != nil {
			record.Error = runErr.Error()
			if m.logger != nil {
				m.logger.Warn("action failed", "alert_id", job.AlertID, "action", job.Action, "error", runErr.Error())
			}
		}
		return m.mutateInstance(ctx, job.AlertID, func(instance *domain.AlertInstance) bool {
			instance.Actions = append(instance.Actions, record)
			return true
		})
	default:
		if m.logger != nil {
			m.logger.Warn("dispatch job with unknown kind dropped", "job_id", job.ID, "kind", job.Kind)
		}
		return nil
	}
}

// fanOut enqueues notification and action jobs for one instance event.
// Enqueue failures are logged and swallowed: dispatch is best-effort
// and must never fail the evaluation pass.
// Params: instance snapshot, destination channels, and action names.
// Returns: nothing.
func (m *Manager) fanOut(ctx context.Context, instance domain.AlertInstance, channels, actionNames []string) {
	notification := domain.Notification{
		Source:          domain.SourceAlert,
		AlertID:         instance.AlertID,
		RuleName:        instance.RuleName,
		Status:          instance.Status,
		Severity:        instance.Severity,
		Category:        instance.Category,
		Metric:          instance.Metric,
		Value:           instance.Value,
		Threshold:       instance.Threshold,
		EscalationLevel: instance.EscalationLevel,
		Message:         instance.Message,
		Timestamp:       m.clk.Now(),
	}

	dispatcher := m.getDispatcher()
	for _, channel := range channels {
		if dispatcher != nil && !dispatcher.Accepts(channel, instance.Severity) {
			continue
		}
		job := dispatchq.Job{
			Kind:         dispatchq.KindNotification,
			Channel:      channel,
			AlertID:      instance.AlertID,
			Notification: notification,
			CreatedAt:    notification.Timestamp,
		}
		job.ID = dispatchq.BuildJobID(job.Kind, channel, "", notification)
		m.enqueue(ctx, job)
	}

	for _, action := range actionNames {
		if !actions.Known(action) {
			if m.logger != nil {
				m.logger.Warn("rule references unknown action", "rule", instance.RuleName, "action", action)
			}
			continue
		}
		job := dispatchq.Job{
			Kind:         dispatchq.KindAction,
			Action:       action,
			Entity:       instance.Metric,
			AlertID:      instance.AlertID,
			Notification: notification,
			CreatedAt:    notification.Timestamp,
		}
		job.ID = dispatchq.BuildJobID(job.Kind, "", action, notification)
		m.enqueue(ctx, job)
	}
}

// enqueue hands one job to the producer and logs failures.
// Params: dispatch job.
// Returns: nothing.
func (m *Manager) enqueue(ctx context.Context, job dispatchq.Job) {
	producer := m.getProducer()
	if producer == nil {
		return
	}
	if err := producer.Enqueue(ctx, job); err != nil && m.logger != nil {
		m.logger.Error("dispatch enqueue failed", "job_id", job.ID, "kind", job.Kind, "error", err.Error())
	}
}

// transition applies one operator transition with CAS retries.
// Params: alert ID and transition mutation; the mutation may reject.
// Returns: state.ErrNotFound, rejection, or store error.
func (m *Manager) transition(ctx context.Context, alertID string, apply func(*domain.AlertInstance) error) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		instance, rev, err := m.store.GetInstance(ctx, alertID)
		if err != nil {
			return err
		}
		if err := apply(&instance); err != nil {
			return err
		}
		_, err = m.store.UpdateInstance(ctx, alertID, rev, instance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, state.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transition on %q kept conflicting after %d attempts", alertID, casAttempts)
}

// mutateInstance applies one best-effort mutation with CAS retries.
// A vanished instance is treated as success; audit appends must not
// fail the queue worker over an already-deleted alert.
// Params: alert ID and mutation; returning false skips the write.
// Returns: store error after retries are exhausted.
func (m *Manager) mutateInstance(ctx context.Context, alertID string, mutate func(*domain.AlertInstance) bool) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		instance, rev, err := m.store.GetInstance(ctx, alertID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return nil
			}
			return err
		}
		if !mutate(&instance) {
			return nil
		}
		_, err = m.store.UpdateInstance(ctx, alertID, rev, instance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, state.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("mutation on %q kept conflicting after %d attempts", alertID, casAttempts)
}

// ruleIndex builds a lookup of active rules by lowercase name.
// Params: none.
// Returns: rule map for escalation and suppression passes.
func (m *Manager) ruleIndex() map[string]config.RuleConfig {
	rules := m.Rules()
	index := make(map[string]config.RuleConfig, len(rules))
	for _, rule := range rules {
		index[strings.ToLower(rule.Name)] = rule
	}
	return index
}

// BuildAlertID derives the store key for one new instance.
// The rule-prefixed form keeps instances listable per rule.
// Params: rule name and creation time.
// Returns: "rule/<name>/<created-unix-ms>" key.
func BuildAlertID(ruleName string, createdAt time.Time) string {
	return fmt.Sprintf("rule/%s/%d", strings.ToLower(strings.TrimSpace(ruleName)), createdAt.UnixMilli())
}
