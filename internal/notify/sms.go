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

// SMSSender posts notifications to an SMS gateway API.
// Params: gateway endpoint, API key, and addressing from config.
// Returns: sms channel sender.
type SMSSender struct {
	cfg     config.SMSChannel
	client  *http.Client
	initErr error
}

// NewSMSSender creates SMS gateway sender.
// Params: sms channel config.
// Returns: initialized sender; config errors surface on first Send.
func NewSMSSender(cfg config.SMSChannel) *SMSSender {
	sender := &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout(cfg.TimeoutSec)},
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		sender.initErr = permanent.Mark(errors.New("sms gateway_url is required"))
		return sender
	}
	if len(cfg.To) == 0 {
		sender.initErr = permanent.Mark(errors.New("sms needs at least one recipient"))
	}
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *SMSSender) Channel() string {
	return config.ChannelSMS
}

// smsPayload is the gateway send request body.
type smsPayload struct {
	From    string   `json:"from,omitempty"`
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// Send posts one notification message to the gateway.
// Params: context and notification payload.
// Returns: transport or HTTP status error.
func (s *SMSSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.initErr != nil {
		return s.initErr
	}
	headers := map[string]string{}
	if s.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.cfg.APIKey
	}
	payload := smsPayload{
		From:    s.cfg.From,
		To:      s.cfg.To,
		Message: notification.Message,
	}
	return postJSON(ctx, s.client, http.MethodPost, s.cfg.GatewayURL, headers, payload)
}
