package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/dispatchq"
	"monitoring/internal/domain"
	"monitoring/internal/lifecycle"
	"monitoring/internal/notify"
	"monitoring/internal/state"
)

type captureProducer struct {
	mu   sync.Mutex
	jobs []dispatchq.Job
}

func (p *captureProducer) Enqueue(_ context.Context, job dispatchq.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *captureProducer) Close() error { return nil }

func (p *captureProducer) captured() []dispatchq.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dispatchq.Job, len(p.jobs))
	copy(out, p.jobs)
	return out
}

func (p *captureProducer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	monitor  *Monitor
	store    *state.MemoryStore
	producer *captureProducer
	clk      *clock.Manual
}

func newFixture(t *testing.T, analysisCfg config.AnalysisConfig, rules ...config.RuleConfig) *fixture {
	t.Helper()
	store := state.NewMemoryStore()
	producer := &captureProducer{}
	clk := clock.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	logger := testLogger()
	manager := lifecycle.NewManager(store, producer, nil, nil, clk, logger, rules)
	mon := New(
		config.ServiceConfig{BufferCapacity: 100, BufferIdleSec: 6 * 3600},
		analysisCfg,
		manager,
		store,
		producer,
		[]string{"slack"},
		clk,
		logger,
	)
	return &fixture{monitor: mon, store: store, producer: producer, clk: clk}
}

func defaultAnalysisCfg() config.AnalysisConfig {
	return config.AnalysisConfig{
		RecentWindow:       20,
		MinHistory:         10,
		DeviationThreshold: 2.0,
		ForecastSteps:      5,
		StableBandPct:      5,
		Scaling: config.ScalingConfig{
			HighLatencyMS:   1000,
			LoadConcurrency: 50,
		},
	}
}

func functionSnapshot(dt time.Time, executionTimeMS, concurrency float64, instances int) domain.MetricSnapshot {
	return domain.MetricSnapshot{
		DT: dt.UnixMilli(),
		Functions: []domain.FunctionSample{{
			Name:            "checkout",
			ExecutionTimeMS: executionTimeMS,
			Concurrency:     concurrency,
			RequestsPerSec:  100,
			Instances:       instances,
		}},
	}
}

func TestPushSnapshotFeedsBuffersAndRunsChecks(t *testing.T) {
	t.Parallel()

	rule := config.RuleConfig{
		Name:      "high-latency",
		Metric:    "p95_latency_ms",
		Category:  "performance",
		Operator:  "above",
		Threshold: 800,
		Severity:  "high",
		Enabled:   true,
	}
	f := newFixture(t, defaultAnalysisCfg(), rule)
	snapshot := domain.MetricSnapshot{
		DT:          f.clk.Now().UnixMilli(),
		Performance: map[string]float64{"p95_latency_ms": 950},
	}

	result, err := f.monitor.PushSnapshot(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if result.Triggered != 1 {
		t.Fatalf("check result = %+v, want 1 trigger", result)
	}
	if last := f.monitor.LastSnapshot(); last == nil || last.DT != snapshot.DT {
		t.Fatal("last snapshot must be retained")
	}

	// Invalid snapshots are rejected before touching state.
	if _, err := f.monitor.PushSnapshot(context.Background(), domain.MetricSnapshot{}); err == nil {
		t.Fatal("invalid snapshot must be rejected")
	}
}

func TestRunAnalysisRecordsAnomalyAndTrend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultAnalysisCfg())
	ctx := context.Background()

	// Historical baseline mean 50, stddev 5; recent window pinned at 100.
	base := f.clk.Now()
	values := []float64{45, 55, 45, 55, 45, 55, 45, 55, 45, 55}
	for i := 0; i < 20; i++ {
		values = append(values, 100)
	}
	for i, value := range values {
		snapshot := domain.MetricSnapshot{
			DT:      base.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Quality: map[string]float64{"error_count": value},
		}
		if _, err := f.monitor.PushSnapshot(ctx, snapshot); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	f.producer.reset()

	result, ran := f.monitor.RunAnalysis(ctx)
	if !ran {
		t.Fatal("analysis pass must run")
	}
	if result.Anomalies != 1 || result.Errors != 0 {
		t.Fatalf("analysis result = %+v", result)
	}

	anomalies := f.store.Anomalies()
	if len(anomalies) != 1 {
		t.Fatalf("stored anomalies = %+v", anomalies)
	}
	record := anomalies[0]
	if record.Entity != "platform" || record.Metric != "error_count" {
		t.Fatalf("anomaly identity = %+v", record)
	}
	if record.Severity != domain.SeverityCritical {
		t.Fatalf("severity = %q, want critical for 10 sigma", record.Severity)
	}

	if len(f.store.Trends()) == 0 {
		t.Fatal("trend estimates must be recorded")
	}

	// One anomaly notification per configured channel.
	jobs := f.producer.captured()
	if len(jobs) != 1 || jobs[0].Kind != dispatchq.KindNotification || jobs[0].Channel != "slack" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].Notification.Source != domain.SourceAnomaly {
		t.Fatalf("source = %q", jobs[0].Notification.Source)
	}
}

func TestRunScalingPassRecommendsOnceAndAutoApplies(t *testing.T) {
	t.Parallel()

	cfg := defaultAnalysisCfg()
	cfg.Scaling.AutoApply = true
	cfg.Scaling.MaxCostDelta = 1000
	f := newFixture(t, cfg)
	ctx := context.Background()

	// Sustained high latency and concurrency on the checkout function.
	base := f.clk.Now()
	for i := 0; i < 5; i++ {
		snapshot := functionSnapshot(base.Add(time.Duration(i)*time.Minute), 1500, 80, 4)
		if _, err := f.monitor.PushSnapshot(ctx, snapshot); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	f.producer.reset()

	result, _ := f.monitor.RunAnalysis(ctx)
	if result.Recommendations != 1 {
		t.Fatalf("result = %+v, want 1 recommendation", result)
	}

	recommendations := f.store.Recommendations()
	if len(recommendations) != 1 {
		t.Fatalf("stored recommendations = %+v", recommendations)
	}
	recommendation := recommendations[0]
	if recommendation.Entity != "checkout" || recommendation.TargetInstances != 6 {
		t.Fatalf("recommendation = %+v", recommendation)
	}
	if !recommendation.AutoApply {
		t.Fatal("recommendation must auto-apply under the cost ceiling")
	}

	// Fan-out: one notification plus the auto-apply action job.
	var actionJobs, notificationJobs int
	for _, job := range f.producer.captured() {
		switch job.Kind {
		case dispatchq.KindAction:
			actionJobs++
			if job.Action != "scale_up_instances" || job.ID != recommendation.ID {
				t.Fatalf("action job = %+v", job)
			}
		case dispatchq.KindNotification:
			notificationJobs++
		}
	}
	if actionJobs != 1 || notificationJobs != 1 {
		t.Fatalf("jobs = %d actions, %d notifications", actionJobs, notificationJobs)
	}
	f.producer.reset()

	// Same load state on the next pass: the recommendation is idempotent.
	result, _ = f.monitor.RunAnalysis(ctx)
	if result.Recommendations != 0 {
		t.Fatalf("repeat pass = %+v, want no new recommendation", result)
	}
	if len(f.producer.captured()) != 0 {
		t.Fatal("repeat pass must not enqueue")
	}
}

func TestRunScalingPassStaysQuietUnderNormalLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultAnalysisCfg())
	ctx := context.Background()
	if _, err := f.monitor.PushSnapshot(ctx, functionSnapshot(f.clk.Now(), 200, 10, 2)); err != nil {
		t.Fatalf("push: %v", err)
	}

	result, _ := f.monitor.RunAnalysis(ctx)
	if result.Recommendations != 0 {
		t.Fatalf("result = %+v, want no recommendations", result)
	}
}

func TestBroadcastHonorsChannelSeverityFilters(t *testing.T) {
	t.Parallel()

	store := state.NewMemoryStore()
	producer := &captureProducer{}
	clk := clock.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	logger := testLogger()

	notifyCfg := config.NotifyConfig{}
	notifyCfg.Slack.Enabled = true
	notifyCfg.Slack.WebhookURL = "http://127.0.0.1:1/slack"
	notifyCfg.Slack.Severities = []string{"critical"}
	notifyCfg.Webhook.Enabled = true
	notifyCfg.Webhook.URL = "http://127.0.0.1:1/hook"
	dispatcher := notify.NewDispatcher(notifyCfg, logger)

	manager := lifecycle.NewManager(store, producer, dispatcher, nil, clk, logger, nil)
	mon := New(
		config.ServiceConfig{BufferCapacity: 100, BufferIdleSec: 6 * 3600},
		defaultAnalysisCfg(),
		manager,
		store,
		producer,
		dispatcher.Channels(),
		clk,
		logger,
	)

	ctx := context.Background()
	base := clk.Now()
	for i := 0; i < 5; i++ {
		if _, err := mon.PushSnapshot(ctx, functionSnapshot(base.Add(time.Duration(i)*time.Minute), 1500, 80, 4)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	producer.reset()

	result, _ := mon.RunAnalysis(ctx)
	if result.Recommendations != 1 {
		t.Fatalf("result = %+v, want 1 recommendation", result)
	}

	// The medium-severity scaling notification passes the unfiltered
	// webhook channel and never the critical-only slack channel.
	notifications := 0
	for _, job := range producer.captured() {
		if job.Kind != dispatchq.KindNotification {
			continue
		}
		notifications++
		if job.Channel != "webhook" {
			t.Fatalf("notification enqueued on %q, want webhook only", job.Channel)
		}
	}
	if notifications != 1 {
		t.Fatalf("notifications = %d, want 1", notifications)
	}
}

func TestTriggerNowIncludesSuppressionScan(t *testing.T) {
	t.Parallel()

	rule := config.RuleConfig{
		Name:        "high-latency",
		Metric:      "p95_latency_ms",
		Category:    "performance",
		Operator:    "above",
		Threshold:   800,
		Severity:    "high",
		Enabled:     true,
		CooldownSec: 3600,
	}
	f := newFixture(t, defaultAnalysisCfg(), rule)
	ctx := context.Background()
	snapshot := domain.MetricSnapshot{
		DT:          f.clk.Now().UnixMilli(),
		Performance: map[string]float64{"p95_latency_ms": 950},
	}
	result, err := f.monitor.PushSnapshot(ctx, snapshot)
	if err != nil || result.Triggered != 1 {
		t.Fatalf("push = %+v, err %v", result, err)
	}

	if err := f.monitor.Manager().Suppress(ctx, result.TriggeredIDs[0], time.Minute); err != nil {
		t.Fatalf("suppress: %v", err)
	}
	f.clk.Advance(2 * time.Minute)

	trigger := f.monitor.TriggerNow(ctx)
	if !trigger.Ran {
		t.Fatal("trigger must run")
	}
	// The condition still fires, so the expired suppression reactivates.
	if trigger.Suppression.Reactivated != 1 || trigger.Suppression.Resolved != 0 {
		t.Fatalf("suppression = %+v", trigger.Suppression)
	}
}

func TestTriggerNowRunsAllPasses(t *testing.T) {
	t.Parallel()

	rule := config.RuleConfig{
		Name:      "high-latency",
		Metric:    "p95_latency_ms",
		Category:  "performance",
		Operator:  "above",
		Threshold: 800,
		Severity:  "high",
		Enabled:   true,
	}
	f := newFixture(t, defaultAnalysisCfg(), rule)
	ctx := context.Background()
	snapshot := domain.MetricSnapshot{
		DT:          f.clk.Now().UnixMilli(),
		Performance: map[string]float64{"p95_latency_ms": 950},
	}
	if _, err := f.monitor.PushSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("push: %v", err)
	}

	result := f.monitor.TriggerNow(ctx)
	if !result.Ran {
		t.Fatal("trigger must run")
	}
	// The push already created the instance; the trigger pass dedups.
	if result.Check.Triggered != 0 || result.Check.Skipped != 1 {
		t.Fatalf("check = %+v", result.Check)
	}
	if result.Analysis.Trends == 0 {
		t.Fatal("trigger must include the analysis pass")
	}
}
