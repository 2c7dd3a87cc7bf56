package domain

import "time"

// Severity ranks alert and anomaly importance.
// Params: low/medium/high/critical constants.
// Returns: ordered severity scale for routing and escalation.
type Severity string

const (
	// SeverityLow marks informational findings.
	SeverityLow Severity = "low"
	// SeverityMedium marks conditions that need attention soon.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks conditions that need prompt attention.
	SeverityHigh Severity = "high"
	// SeverityCritical marks conditions that need immediate attention.
	SeverityCritical Severity = "critical"
)

// Rank converts severity into comparable integer.
// Params: none.
// Returns: 0 for unknown values, 1..4 for low..critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether severity is one of the known constants.
// Params: none.
// Returns: true for low/medium/high/critical.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Operator selects threshold comparison for rule conditions.
// Params: above/below/equals constants.
// Returns: comparison kind consumed by the condition evaluator.
type Operator string

const (
	// OperatorAbove fires when value is strictly greater than threshold.
	OperatorAbove Operator = "above"
	// OperatorBelow fires when value is strictly less than threshold.
	OperatorBelow Operator = "below"
	// OperatorEquals fires when value is within epsilon of threshold.
	OperatorEquals Operator = "equals"
)

// AlertStatus is runtime alert lifecycle state.
// Params: active/acknowledged/resolved/suppressed constants.
// Returns: state transitions for persistence and notifications.
type AlertStatus string

const (
	// StatusActive indicates a triggered, unhandled alert.
	StatusActive AlertStatus = "active"
	// StatusAcknowledged indicates an operator has taken ownership.
	StatusAcknowledged AlertStatus = "acknowledged"
	// StatusResolved indicates the terminal closed state.
	StatusResolved AlertStatus = "resolved"
	// StatusSuppressed indicates a muted alert with an expiry.
	StatusSuppressed AlertStatus = "suppressed"
)

// IsOpen reports whether the status still participates in evaluation.
// Params: none.
// Returns: true for active and acknowledged states.
func (s AlertStatus) IsOpen() bool {
	return s == StatusActive || s == StatusAcknowledged
}

// NotificationRecord is one delivery attempt entry in the alert log.
// Params: channel key, attempt time, and outcome.
// Returns: immutable audit entry appended after dispatch.
type NotificationRecord struct {
	Channel string    `json:"channel"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// ActionRecord is one auto-action execution entry in the alert log.
// Params: action name, execution time, and outcome.
// Returns: immutable audit entry appended after execution.
type ActionRecord struct {
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// AlertInstance stores one concrete occurrence of a rule condition.
// Params: identity, observed condition context, lifecycle timestamps, and audit logs.
// Returns: mutable record for the state backend; transitioned, never hard-deleted.
type AlertInstance struct {
	AlertID         string               `json:"alert_id"`
	RuleName        string               `json:"rule_name"`
	Status          AlertStatus          `json:"status"`
	Severity        Severity             `json:"severity"`
	Category        MetricCategory       `json:"category"`
	Metric          string               `json:"metric"`
	Value           float64              `json:"value"`
	Threshold       float64              `json:"threshold"`
	Message         string               `json:"message"`
	EscalationLevel int                  `json:"escalation_level"`
	Notifications   []NotificationRecord `json:"notifications,omitempty"`
	Actions         []ActionRecord       `json:"actions,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	AcknowledgedAt  *time.Time           `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string               `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	ResolveCause    string               `json:"resolve_cause,omitempty"`
	SuppressedUntil *time.Time           `json:"suppressed_until,omitempty"`
}

// NotificationSource identifies what produced one outbound notification.
// Params: alert/anomaly/scaling constants.
// Returns: payload classification for channel senders.
type NotificationSource string

const (
	// SourceAlert marks notifications produced by rule evaluation.
	SourceAlert NotificationSource = "alert"
	// SourceAnomaly marks notifications produced by the anomaly detector.
	SourceAnomaly NotificationSource = "anomaly"
	// SourceScaling marks notifications produced by the scaling advisor.
	SourceScaling NotificationSource = "scaling"
)

// Notification contains one outbound channel payload.
// Params: alert identity, condition context, and transition metadata.
// Returns: one delivery request for the notify layer.
type Notification struct {
	Source          NotificationSource `json:"source"`
	Channel         string             `json:"channel"`
	AlertID         string             `json:"alert_id,omitempty"`
	RuleName        string             `json:"rule_name,omitempty"`
	Status          AlertStatus        `json:"status,omitempty"`
	Severity        Severity           `json:"severity"`
	Category        MetricCategory     `json:"category,omitempty"`
	Metric          string             `json:"metric"`
	Entity          string             `json:"entity,omitempty"`
	Value           float64            `json:"value"`
	Threshold       float64            `json:"threshold,omitempty"`
	EscalationLevel int                `json:"escalation_level,omitempty"`
	Message         string             `json:"message"`
	Timestamp       time.Time          `json:"timestamp"`
}
