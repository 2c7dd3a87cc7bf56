package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"monitoring/internal/config"
	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

// PagerSender posts notifications to a pager events API.
// Params: events endpoint and routing key from config.
// Returns: pager channel sender.
type PagerSender struct {
	cfg     config.PagerChannel
	client  *http.Client
	initErr error
}

// NewPagerSender creates pager events sender.
// Params: pager channel config.
// Returns: initialized sender; config errors surface on first Send.
func NewPagerSender(cfg config.PagerChannel) *PagerSender {
	sender := &PagerSender{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout(cfg.TimeoutSec)},
	}
	if strings.TrimSpace(cfg.EventsURL) == "" {
		sender.initErr = permanent.Mark(errors.New("pager events_url is required"))
		return sender
	}
	if strings.TrimSpace(cfg.RoutingKey) == "" {
		sender.initErr = permanent.Mark(errors.New("pager routing_key is required"))
	}
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *PagerSender) Channel() string {
	return config.ChannelPager
}

// pagerEvent is the events API trigger body.
type pagerEvent struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     pagerPayload `json:"payload"`
}

type pagerPayload struct {
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	Severity string `json:"severity"`
}

// Send triggers one pager event for the notification.
// The alert ID doubles as the dedup key so repeated escalation pages
// for one instance collapse on the pager side.
// Params: context and notification payload.
// Returns: transport or HTTP status error.
func (s *PagerSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.initErr != nil {
		return s.initErr
	}
	event := pagerEvent{
		RoutingKey:  s.cfg.RoutingKey,
		EventAction: "trigger",
		DedupKey:    notification.AlertID,
		Payload: pagerPayload{
			Summary:  notification.Message,
			Source:   "monitoring",
			Severity: pagerSeverity(notification.Severity),
		},
	}
	return postJSON(ctx, s.client, http.MethodPost, s.cfg.EventsURL, nil, event)
}

// pagerSeverity maps internal severity onto the events API vocabulary.
// Params: internal severity.
// Returns: critical/error/warning/info label.
func pagerSeverity(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "critical"
	case domain.SeverityHigh:
		return "error"
	case domain.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}
