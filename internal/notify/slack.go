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

// SlackSender posts notifications to a Slack incoming webhook.
// Params: webhook URL and optional channel override from config.
// Returns: slack channel sender.
type SlackSender struct {
	cfg     config.SlackChannel
	client  *http.Client
	initErr error
}

// NewSlackSender creates Slack webhook sender.
// Params: slack channel config.
// Returns: initialized sender; config errors surface on first Send.
func NewSlackSender(cfg config.SlackChannel) *SlackSender {
	sender := &SlackSender{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout(cfg.TimeoutSec)},
	}
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		sender.initErr = permanent.Mark(errors.New("slack webhook_url is required"))
	}
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *SlackSender) Channel() string {
	return config.ChannelSlack
}

// slackPayload is the incoming-webhook message body.
type slackPayload struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Send posts one notification message to the webhook.
// Params: context and notification payload.
// Returns: transport or HTTP status error.
func (s *SlackSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.initErr != nil {
		return s.initErr
	}
	payload := slackPayload{
		Text:    notification.Message,
		Channel: s.cfg.Channel,
	}
	return postJSON(ctx, s.client, http.MethodPost, s.cfg.WebhookURL, nil, payload)
}
