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

// WebhookSender posts the full notification payload to a generic endpoint.
// Params: URL, method, timeout, and static headers from config.
// Returns: webhook channel sender.
type WebhookSender struct {
	cfg     config.WebhookChannel
	client  *http.Client
	initErr error
}

// NewWebhookSender creates generic HTTP sender.
// Params: webhook channel config.
// Returns: initialized sender; config errors surface on first Send.
func NewWebhookSender(cfg config.WebhookChannel) *WebhookSender {
	sender := &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout(cfg.TimeoutSec)},
	}
	if strings.TrimSpace(cfg.URL) == "" {
		sender.initErr = permanent.Mark(errors.New("webhook url is required"))
	}
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *WebhookSender) Channel() string {
	return config.ChannelWebhook
}

// Send posts the structured notification to the endpoint.
// Unlike the chat channels this ships the whole payload, so receivers
// get machine-readable fields instead of a rendered line.
// Params: context and notification payload.
// Returns: transport or HTTP status error.
func (s *WebhookSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.initErr != nil {
		return s.initErr
	}
	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	return postJSON(ctx, s.client, method, s.cfg.URL, s.cfg.Headers, notification)
}
