package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"monitoring/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultSnapshotPath       = "/snapshot"
	defaultTriggerPath        = "/run"
	defaultMaxBodyBytes       = 1 << 20
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSSubject        = "monitoring.snapshots"
	defaultNATSStream         = "MONITORING_SNAPSHOTS"
	defaultNATSConsumer       = "monitoring-ingest"
	defaultNATSGroup          = "monitoring-workers"
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultAlertBucket        = "alerts"
	defaultQueueSubject       = "monitoring.dispatch"
	defaultQueueStream        = "MONITORING_DISPATCH"
	defaultQueueConsumer      = "monitoring-dispatch"
	defaultQueueGroup         = "monitoring-dispatchers"
	defaultDLQSubject         = "monitoring.dispatch.dlq"
	defaultDLQStream          = "MONITORING_DISPATCH_DLQ"
	defaultCheckSeconds       = 30
	defaultEscalationSeconds  = 60
	defaultAnalysisSeconds    = 300
	defaultSuppressionSeconds = 60
	defaultReloadSeconds      = 5
	defaultBufferCapacity     = 100
	defaultBufferIdleSec      = 6 * 3600
	defaultRecentWindow       = 20
	defaultMinHistory         = 10
	defaultDeviationThreshold = 2.0
	defaultForecastSteps      = 5
	defaultStableBandPct      = 5.0
	defaultHighLatencyMS      = 1000.0
	defaultLoadConcurrency    = 50.0
	defaultActionTimeoutSec   = 10

	// ServiceModeNATS keeps NATS-backed state/ingest/queue settings.
	ServiceModeNATS = "nats"
	// ServiceModeSingle keeps single-instance mode without NATS dependencies.
	ServiceModeSingle = "single"

	// ChannelEmail identifies SMTP transport.
	ChannelEmail = "email"
	// ChannelSlack identifies Slack webhook transport.
	ChannelSlack = "slack"
	// ChannelSMS identifies SMS gateway transport.
	ChannelSMS = "sms"
	// ChannelWebhook identifies generic HTTP webhook transport.
	ChannelWebhook = "webhook"
	// ChannelPager identifies pager events API transport.
	ChannelPager = "pager"
	// ChannelTelegram identifies Telegram transport.
	ChannelTelegram = "telegram"
)

var channelOrder = []string{
	ChannelEmail,
	ChannelSlack,
	ChannelSMS,
	ChannelWebhook,
	ChannelPager,
	ChannelTelegram,
}

// channelDescriptor stores generic accessors for one notify transport.
// Params: config readers for the shared per-channel fields.
// Returns: channel metadata used by generic helpers.
type channelDescriptor struct {
	common func(NotifyConfig) ChannelCommon
}

var channelRegistry = map[string]channelDescriptor{
	ChannelEmail:    {common: func(cfg NotifyConfig) ChannelCommon { return cfg.Email.ChannelCommon }},
	ChannelSlack:    {common: func(cfg NotifyConfig) ChannelCommon { return cfg.Slack.ChannelCommon }},
	ChannelSMS:      {common: func(cfg NotifyConfig) ChannelCommon { return cfg.SMS.ChannelCommon }},
	ChannelWebhook:  {common: func(cfg NotifyConfig) ChannelCommon { return cfg.Webhook.ChannelCommon }},
	ChannelPager:    {common: func(cfg NotifyConfig) ChannelCommon { return cfg.Pager.ChannelCommon }},
	ChannelTelegram: {common: func(cfg NotifyConfig) ChannelCommon { return cfg.Telegram.ChannelCommon }},
}

// Config holds service runtime settings and alert rules.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	Ingest   IngestConfig   `toml:"ingest"`
	Notify   NotifyConfig   `toml:"notify"`
	Actions  ActionsConfig  `toml:"actions"`
	Analysis AnalysisConfig `toml:"analysis"`
	Rule     []RuleConfig   `toml:"rule"`
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw rule map keyed by rule name.
type rawConfig struct {
	Service  ServiceConfig            `toml:"service"`
	Log      LogConfig                `toml:"log"`
	Ingest   IngestConfig             `toml:"ingest"`
	Notify   NotifyConfig             `toml:"notify"`
	Actions  ActionsConfig            `toml:"actions"`
	Analysis AnalysisConfig           `toml:"analysis"`
	Rule     map[string]rawRuleConfig `toml:"rule"`
}

// rawRuleConfig stores one rule body from `[rule.<name>]` table.
// Params: rule fields except top-level key-derived name.
// Returns: intermediate rule body used for normalization.
type rawRuleConfig struct {
	Metric      string                 `toml:"metric"`
	Category    string                 `toml:"category"`
	Operator    string                 `toml:"operator"`
	Threshold   float64                `toml:"threshold"`
	Severity    string                 `toml:"severity"`
	Enabled     *bool                  `toml:"enabled"`
	CooldownSec int                    `toml:"cooldown_sec"`
	Message     string                 `toml:"message"`
	Channels    []string               `toml:"channels"`
	Actions     []string               `toml:"actions"`
	Escalation  []EscalationStepConfig `toml:"escalation"`
}

// ServiceConfig contains process-level settings.
// Params: name, mode, pass cadences, reload, and buffer controls.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name                  string `toml:"name"`
	Mode                  string `toml:"mode"`
	CheckIntervalSec      int    `toml:"check_interval_sec"`
	EscalationIntervalSec int    `toml:"escalation_interval_sec"`
	AnalysisIntervalSec   int    `toml:"analysis_interval_sec"`
	SuppressionScanSec    int    `toml:"suppression_scan_sec"`
	ReloadEnabled         bool   `toml:"reload_enabled"`
	ReloadIntervalSec     int    `toml:"reload_interval_sec"`
	BufferCapacity        int    `toml:"buffer_capacity"`
	BufferIdleSec         int    `toml:"buffer_idle_sec"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig defines inbound snapshot interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures HTTP snapshot ingestion and admin trigger endpoints.
// Params: enable flag, listen/endpoints, and optional body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	SnapshotPath string `toml:"snapshot_path"`
	TriggerPath  string `toml:"trigger_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer snapshot ingestion.
// Params: connection + ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// NATSStateConfig contains fixed JetStream KV and stream controls for the state backend.
// Params: URL, alert bucket, and append-only derived-record subjects.
// Returns: NATS state backend options.
type NATSStateConfig struct {
	URL                []string `toml:"url"`
	AlertBucket        string   `toml:"alert_bucket"`
	AnomalySubject     string   `toml:"anomaly_subject"`
	AnomalyStream      string   `toml:"anomaly_stream"`
	TrendSubject       string   `toml:"trend_subject"`
	TrendStream        string   `toml:"trend_stream"`
	ScalingSubject     string   `toml:"scaling_subject"`
	ScalingStream      string   `toml:"scaling_stream"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// DeriveStateNATSConfig builds fixed state-backend settings from runtime config.
// Params: full runtime configuration snapshot.
// Returns: non-user-overridable NATS state settings.
func DeriveStateNATSConfig(cfg Config) NATSStateConfig {
	urls := normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(urls) == 0 {
		urls = []string{defaultNATSURL}
	}
	return NATSStateConfig{
		URL:                urls,
		AlertBucket:        defaultAlertBucket,
		AnomalySubject:     "monitoring.anomalies",
		AnomalyStream:      "MONITORING_ANOMALIES",
		TrendSubject:       "monitoring.trends",
		TrendStream:        "MONITORING_TRENDS",
		ScalingSubject:     "monitoring.scaling",
		ScalingStream:      "MONITORING_SCALING",
		AllowCreateBuckets: true,
	}
}

// DispatchQueueConfig defines asynchronous dispatch queue settings.
// Params: enable flag plus worker/ack policy; routing keys are runtime-fixed.
// Returns: async dispatch pipeline controls.
type DispatchQueueConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"-"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	DLQSubject    string   `toml:"-"`
	DLQStream     string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
	DLQ           bool     `toml:"dlq"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff bounds, attempt limit, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool `toml:"enabled"`
	InitialMS      int  `toml:"initial_ms"`
	MaxMS          int  `toml:"max_ms"`
	MaxAttempts    int  `toml:"max_attempts"`
	LogEachAttempt bool `toml:"log_each_attempt"`
}

// ChannelCommon carries fields shared by all notify transports.
// Params: enable flag, severity filter, message template, and retry policy.
// Returns: embedded channel base configuration.
type ChannelCommon struct {
	Enabled    bool        `toml:"enabled"`
	Severities []string    `toml:"severities"`
	Template   string      `toml:"template"`
	Retry      NotifyRetry `toml:"retry"`
}

// EmailChannel defines SMTP channel settings.
// Params: SMTP endpoint, credentials, and addressing.
// Returns: email sender configuration.
type EmailChannel struct {
	ChannelCommon
	SMTPHost string   `toml:"smtp_host"`
	SMTPPort int      `toml:"smtp_port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
}

// SlackChannel defines Slack incoming-webhook settings.
// Params: webhook URL and optional channel override.
// Returns: slack sender configuration.
type SlackChannel struct {
	ChannelCommon
	WebhookURL string `toml:"webhook_url"`
	Channel    string `toml:"channel"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// SMSChannel defines SMS gateway settings.
// Params: gateway endpoint, API key, and addressing.
// Returns: sms sender configuration.
type SMSChannel struct {
	ChannelCommon
	GatewayURL string   `toml:"gateway_url"`
	APIKey     string   `toml:"api_key"`
	From       string   `toml:"from"`
	To         []string `toml:"to"`
	TimeoutSec int      `toml:"timeout_sec"`
}

// WebhookChannel defines generic outbound HTTP endpoint settings.
// Params: URL, method, timeout, and optional static headers.
// Returns: webhook sender configuration.
type WebhookChannel struct {
	ChannelCommon
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	Headers    map[string]string `toml:"headers"`
	TimeoutSec int               `toml:"timeout_sec"`
}

// PagerChannel defines pager events API settings.
// Params: events endpoint and routing key.
// Returns: pager sender configuration.
type PagerChannel struct {
	ChannelCommon
	EventsURL  string `toml:"events_url"`
	RoutingKey string `toml:"routing_key"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// TelegramChannel defines Telegram bot settings.
// Params: bot token, chat ID, and API base URL.
// Returns: telegram sender configuration.
type TelegramChannel struct {
	ChannelCommon
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// NotifyConfig defines outbound notification behavior.
// Params: dispatch queue and per-channel transport settings.
// Returns: notification controls.
type NotifyConfig struct {
	Queue    DispatchQueueConfig `toml:"queue"`
	Email    EmailChannel        `toml:"email"`
	Slack    SlackChannel        `toml:"slack"`
	SMS      SMSChannel          `toml:"sms"`
	Webhook  WebhookChannel      `toml:"webhook"`
	Pager    PagerChannel        `toml:"pager"`
	Telegram TelegramChannel     `toml:"telegram"`
}

// ActionsConfig defines auto-action execution against the platform admin API.
// Params: admin API base URL, timeout, and dry-run toggle.
// Returns: action runner configuration.
type ActionsConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
	DryRun     bool   `toml:"dry_run"`
}

// AnalysisConfig defines anomaly/trend/scaling analysis settings.
// Params: window sizes, thresholds, polarity table, and scaling gates.
// Returns: analysis pass configuration.
type AnalysisConfig struct {
	RecentWindow       int             `toml:"recent_window"`
	MinHistory         int             `toml:"min_history"`
	DeviationThreshold float64         `toml:"deviation_threshold"`
	ForecastSteps      int             `toml:"forecast_steps"`
	StableBandPct      float64         `toml:"stable_band_pct"`
	HigherIsBetter     map[string]bool `toml:"higher_is_better"`
	Scaling            ScalingConfig   `toml:"scaling"`
}

// ScalingConfig defines scaling advisor thresholds and enactment gates.
// Params: latency/load thresholds, auto-apply toggle, and cost ceiling.
// Returns: scaling advisor configuration.
type ScalingConfig struct {
	HighLatencyMS   float64 `toml:"high_latency_ms"`
	LoadConcurrency float64 `toml:"load_concurrency"`
	AutoApply       bool    `toml:"auto_apply"`
	MaxCostDelta    float64 `toml:"max_cost_delta"`
}

// EscalationStepConfig is one ordered escalation step of a rule.
// Params: delay since alert creation, target severity, and side effects.
// Returns: escalation step consumed in array order.
type EscalationStepConfig struct {
	AfterMin int      `toml:"after_min"`
	Severity string   `toml:"severity"`
	Channels []string `toml:"channels"`
	Actions  []string `toml:"actions"`
}

// TriggerAfter converts the step delay into a duration.
// Params: none.
// Returns: delay since alert creation before the step applies.
func (s EscalationStepConfig) TriggerAfter() time.Duration {
	return time.Duration(s.AfterMin) * time.Minute
}

// RuleConfig describes one alert rule.
// Params: watched metric, condition, response channels/actions, and escalation ladder.
// Returns: runtime rule definition cached by the engine.
type RuleConfig struct {
	Name        string                 `toml:"name"`
	Metric      string                 `toml:"metric"`
	Category    string                 `toml:"category"`
	Operator    string                 `toml:"operator"`
	Threshold   float64                `toml:"threshold"`
	Severity    string                 `toml:"severity"`
	Enabled     bool                   `toml:"enabled"`
	CooldownSec int                    `toml:"cooldown_sec"`
	Message     string                 `toml:"message"`
	Channels    []string               `toml:"channels"`
	Actions     []string               `toml:"actions"`
	Escalation  []EscalationStepConfig `toml:"escalation"`
}

// Cooldown converts rule cooldown into a duration.
// Params: none.
// Returns: minimum spacing between instances of this rule.
func (r RuleConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSec) * time.Second
}

// MetricCategory returns the typed category of the rule.
// Params: none.
// Returns: domain category value.
func (r RuleConfig) MetricCategory() domain.MetricCategory {
	return domain.MetricCategory(r.Category)
}

// RuleOperator returns the typed comparison operator of the rule.
// Params: none.
// Returns: domain operator value.
func (r RuleConfig) RuleOperator() domain.Operator {
	return domain.Operator(r.Operator)
}

// RuleSeverity returns the typed base severity of the rule.
// Params: none.
// Returns: domain severity value.
func (r RuleConfig) RuleSeverity() domain.Severity {
	return domain.Severity(r.Severity)
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var (
		body []byte
		err  error
	)
	if src.File != "" {
		body, err = os.ReadFile(src.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", src.File, err)
		}
	} else {
		body, err = readDirFragments(src.Dir)
		if err != nil {
			return Config{}, err
		}
	}

	cfg, err := Parse(body)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes, normalizes, defaults, and validates one TOML document.
// Params: raw TOML bytes.
// Returns: validated config snapshot.
func Parse(body []byte) (Config, error) {
	var raw rawConfig
	decoder := toml.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readDirFragments concatenates sorted *.toml fragments from one directory.
// Fragments must not redefine the same table; rule tables are the intended
// split unit (one rule file per team, shared service/notify fragment).
// Params: directory path.
// Returns: combined TOML document bytes.
func readDirFragments(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("config dir %q contains no .toml fragments", dir)
	}
	sort.Strings(names)

	var combined []byte
	for _, name := range names {
		fragment, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read config fragment %q: %w", name, err)
		}
		combined = append(combined, fragment...)
		combined = append(combined, '\n')
	}
	return combined, nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config.
// Returns: normalized config snapshot with rules in deterministic name order.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:  raw.Service,
		Log:      raw.Log,
		Ingest:   raw.Ingest,
		Notify:   raw.Notify,
		Actions:  raw.Actions,
		Analysis: raw.Analysis,
	}
	if len(raw.Rule) == 0 {
		return cfg, nil
	}

	names := make([]string, 0, len(raw.Rule))
	for name := range raw.Rule {
		names = append(names, name)
	}
	sort.Strings(names)
	cfg.Rule = make([]RuleConfig, 0, len(names))
	for _, name := range names {
		body := raw.Rule[name]
		enabled := true
		if body.Enabled != nil {
			enabled = *body.Enabled
		}
		cfg.Rule = append(cfg.Rule, RuleConfig{
			Name:        name,
			Metric:      body.Metric,
			Category:    strings.ToLower(strings.TrimSpace(body.Category)),
			Operator:    strings.ToLower(strings.TrimSpace(body.Operator)),
			Threshold:   body.Threshold,
			Severity:    strings.ToLower(strings.TrimSpace(body.Severity)),
			Enabled:     enabled,
			CooldownSec: body.CooldownSec,
			Message:     body.Message,
			Channels:    body.Channels,
			Actions:     body.Actions,
			Escalation:  body.Escalation,
		})
	}
	return cfg, nil
}

// applyDefaults fills zero values with runtime defaults.
// Params: mutable config pointer.
// Returns: config defaulted in place.
func applyDefaults(cfg *Config) {
	if cfg.Service.Mode == "" {
		cfg.Service.Mode = ServiceModeNATS
	}
	if cfg.Service.CheckIntervalSec <= 0 {
		cfg.Service.CheckIntervalSec = defaultCheckSeconds
	}
	if cfg.Service.EscalationIntervalSec <= 0 {
		cfg.Service.EscalationIntervalSec = defaultEscalationSeconds
	}
	if cfg.Service.AnalysisIntervalSec <= 0 {
		cfg.Service.AnalysisIntervalSec = defaultAnalysisSeconds
	}
	if cfg.Service.SuppressionScanSec <= 0 {
		cfg.Service.SuppressionScanSec = defaultSuppressionSeconds
	}
	if cfg.Service.ReloadIntervalSec <= 0 {
		cfg.Service.ReloadIntervalSec = defaultReloadSeconds
	}
	if cfg.Service.BufferCapacity <= 0 {
		cfg.Service.BufferCapacity = defaultBufferCapacity
	}
	if cfg.Service.BufferIdleSec <= 0 {
		cfg.Service.BufferIdleSec = defaultBufferIdleSec
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}

	httpCfg := &cfg.Ingest.HTTP
	if httpCfg.Listen == "" {
		httpCfg.Listen = defaultHTTPListen
	}
	if httpCfg.HealthPath == "" {
		httpCfg.HealthPath = defaultHealthPath
	}
	if httpCfg.ReadyPath == "" {
		httpCfg.ReadyPath = defaultReadyPath
	}
	if httpCfg.SnapshotPath == "" {
		httpCfg.SnapshotPath = defaultSnapshotPath
	}
	if httpCfg.TriggerPath == "" {
		httpCfg.TriggerPath = defaultTriggerPath
	}
	if httpCfg.MaxBodyBytes <= 0 {
		httpCfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	natsCfg := &cfg.Ingest.NATS
	natsCfg.URL = normalizeNATSURLs(natsCfg.URL)
	if len(natsCfg.URL) == 0 {
		natsCfg.URL = []string{defaultNATSURL}
	}
	natsCfg.Subject = defaultNATSSubject
	natsCfg.Stream = defaultNATSStream
	natsCfg.ConsumerName = defaultNATSConsumer
	natsCfg.DeliverGroup = defaultNATSGroup
	if natsCfg.AckWaitSec <= 0 {
		natsCfg.AckWaitSec = defaultNATSAckWaitSec
	}
	if natsCfg.NackDelayMS <= 0 {
		natsCfg.NackDelayMS = defaultNATSNackDelayMS
	}
	if natsCfg.MaxDeliver == 0 {
		natsCfg.MaxDeliver = defaultNATSMaxDeliver
	}
	if natsCfg.MaxAckPending <= 0 {
		natsCfg.MaxAckPending = defaultNATSMaxAckPending
	}

	queue := &cfg.Notify.Queue
	queue.URL = natsCfg.URL
	queue.Subject = defaultQueueSubject
	queue.Stream = defaultQueueStream
	queue.ConsumerName = defaultQueueConsumer
	queue.DeliverGroup = defaultQueueGroup
	queue.DLQSubject = defaultDLQSubject
	queue.DLQStream = defaultDLQStream
	if queue.AckWaitSec <= 0 {
		queue.AckWaitSec = defaultNATSAckWaitSec
	}
	if queue.NackDelayMS <= 0 {
		queue.NackDelayMS = defaultNATSNackDelayMS
	}
	if queue.MaxDeliver == 0 {
		queue.MaxDeliver = 5
	}
	if queue.MaxAckPending <= 0 {
		queue.MaxAckPending = defaultNATSMaxAckPending
	}

	if cfg.Actions.TimeoutSec <= 0 {
		cfg.Actions.TimeoutSec = defaultActionTimeoutSec
	}

	analysis := &cfg.Analysis
	if analysis.RecentWindow <= 0 {
		analysis.RecentWindow = defaultRecentWindow
	}
	if analysis.MinHistory <= 0 {
		analysis.MinHistory = defaultMinHistory
	}
	if analysis.DeviationThreshold <= 0 {
		analysis.DeviationThreshold = defaultDeviationThreshold
	}
	if analysis.ForecastSteps <= 0 {
		analysis.ForecastSteps = defaultForecastSteps
	}
	if analysis.StableBandPct <= 0 {
		analysis.StableBandPct = defaultStableBandPct
	}
	if analysis.Scaling.HighLatencyMS <= 0 {
		analysis.Scaling.HighLatencyMS = defaultHighLatencyMS
	}
	if analysis.Scaling.LoadConcurrency <= 0 {
		analysis.Scaling.LoadConcurrency = defaultLoadConcurrency
	}
}

// validateConfig validates normalized config snapshot.
// Params: defaulted config.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if !IsSupportedServiceMode(cfg.Service.Mode) {
		return fmt.Errorf("service.mode %q is not supported", cfg.Service.Mode)
	}

	for _, rule := range cfg.Rule {
		if err := validateRule(rule); err != nil {
			return err
		}
	}

	for _, channel := range channelOrder {
		common := channelRegistry[channel].common(cfg.Notify)
		if !common.Enabled {
			continue
		}
		for _, severity := range common.Severities {
			if !domain.Severity(severity).IsValid() {
				return fmt.Errorf("notify.%s.severities contains unknown severity %q", channel, severity)
			}
		}
	}

	for metric := range cfg.Analysis.HigherIsBetter {
		if strings.TrimSpace(metric) == "" {
			return errors.New("analysis.higher_is_better contains empty metric name")
		}
	}
	return nil
}

// validateRule validates one normalized rule definition.
// Params: rule body with name.
// Returns: first validation error.
func validateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.Metric) == "" {
		return fmt.Errorf("rule.%s.metric is required", rule.Name)
	}
	if !rule.MetricCategory().IsValid() {
		return fmt.Errorf("rule.%s.category %q is not supported", rule.Name, rule.Category)
	}
	switch rule.RuleOperator() {
	case domain.OperatorAbove, domain.OperatorBelow, domain.OperatorEquals:
	default:
		return fmt.Errorf("rule.%s.operator %q is not supported", rule.Name, rule.Operator)
	}
	if !rule.RuleSeverity().IsValid() {
		return fmt.Errorf("rule.%s.severity %q is not supported", rule.Name, rule.Severity)
	}
	if rule.CooldownSec < 0 {
		return fmt.Errorf("rule.%s.cooldown_sec must be >=0", rule.Name)
	}
	for _, channel := range rule.Channels {
		if _, ok := channelRegistry[channel]; !ok {
			return fmt.Errorf("rule.%s.channels contains unknown channel %q", rule.Name, channel)
		}
	}
	for i, step := range rule.Escalation {
		if step.AfterMin <= 0 {
			return fmt.Errorf("rule.%s.escalation[%d].after_min must be >0", rule.Name, i)
		}
		if !domain.Severity(step.Severity).IsValid() {
			return fmt.Errorf("rule.%s.escalation[%d].severity %q is not supported", rule.Name, i, step.Severity)
		}
		for _, channel := range step.Channels {
			if _, ok := channelRegistry[channel]; !ok {
				return fmt.Errorf("rule.%s.escalation[%d].channels contains unknown channel %q", rule.Name, i, channel)
			}
		}
	}
	return nil
}

// normalizeNATSURLs trims and drops empty URL entries.
// Params: raw URL list from config.
// Returns: cleaned URL list.
func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		out = append(out, url)
	}
	return out
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`nats` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeNATS
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
// Params: normalized mode value.
// Returns: true for known modes.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeNATS, ServiceModeSingle:
		return true
	default:
		return false
	}
}

// NotifyChannelNames returns deterministic list of supported channel keys.
// Params: none.
// Returns: ordered channel key list.
func NotifyChannelNames() []string {
	out := make([]string, len(channelOrder))
	copy(out, channelOrder)
	return out
}

// NotifyChannelEnabled reports whether one channel transport is enabled.
// Params: notify config and channel key.
// Returns: false for unknown channels.
func NotifyChannelEnabled(cfg NotifyConfig, channel string) bool {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return false
	}
	return descriptor.common(cfg).Enabled
}

// NotifyChannelRetry returns retry policy for one channel.
// Params: notify config and channel key.
// Returns: zero policy for unknown channels.
func NotifyChannelRetry(cfg NotifyConfig, channel string) NotifyRetry {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return NotifyRetry{}
	}
	return descriptor.common(cfg).Retry
}

// NotifyChannelSeverities returns the severity filter for one channel.
// Params: notify config and channel key.
// Returns: nil for unknown channels; empty means accept everything.
func NotifyChannelSeverities(cfg NotifyConfig, channel string) []string {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return nil
	}
	return descriptor.common(cfg).Severities
}

// NotifyChannelTemplate returns message template override for one channel.
// Params: notify config and channel key.
// Returns: empty string when channel uses the default message.
func NotifyChannelTemplate(cfg NotifyConfig, channel string) string {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return ""
	}
	return descriptor.common(cfg).Template
}
