package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

// defaultMessageTemplate renders notifications for channels without a
// template override.
const defaultMessageTemplate = "[{{.Severity}}] {{if .RuleName}}{{.RuleName}}{{else}}{{.Entity}}{{end}}: {{.Message}}"

// ChannelSender sends one outbound notification to one channel.
// Params: context and notification payload.
// Returns: transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notification domain.Notification) error
}

// Dispatcher delivers notifications with per-channel retry policies.
// Params: sender set, compiled templates, and retry policies.
// Returns: send helper for the lifecycle and dispatch layers.
type Dispatcher struct {
	senders   map[string]ChannelSender
	channels  []string
	retries   map[string]config.NotifyRetry
	filters   map[string][]domain.Severity
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewDispatcher builds notification dispatcher from enabled channels.
// Params: notify config snapshot and logger.
// Returns: configured dispatcher with available senders.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	senders := make(map[string]ChannelSender)
	retries := make(map[string]config.NotifyRetry)
	filters := make(map[string][]domain.Severity)
	templates := make(map[string]*template.Template)
	for _, channel := range config.NotifyChannelNames() {
		if !config.NotifyChannelEnabled(cfg, channel) {
			continue
		}
		sender := newSenderForChannel(channel, cfg)
		if sender == nil {
			continue
		}
		senders[channel] = sender
		retries[channel] = config.NotifyChannelRetry(cfg, channel)
		for _, severity := range config.NotifyChannelSeverities(cfg, channel) {
			filters[channel] = append(filters[channel], domain.Severity(severity))
		}

		body := strings.TrimSpace(config.NotifyChannelTemplate(cfg, channel))
		if body == "" {
			body = defaultMessageTemplate
		}
		compiled, err := template.New("notify." + channel + ".message").Parse(body)
		if err != nil {
			if logger != nil {
				logger.Warn("notify template is invalid, falling back to default",
					"channel", channel, "error", err.Error())
			}
			compiled = template.Must(template.New("notify." + channel + ".default").Parse(defaultMessageTemplate))
		}
		templates[channel] = compiled
	}

	channels := make([]string, 0, len(senders))
	for channel := range senders {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	return &Dispatcher{
		senders:   senders,
		channels:  channels,
		retries:   retries,
		filters:   filters,
		templates: templates,
		logger:    logger,
	}
}

// newSenderForChannel builds transport sender implementation for one channel key.
// Params: normalized channel key and full notify config.
// Returns: channel sender or nil when channel is unknown.
func newSenderForChannel(channel string, cfg config.NotifyConfig) ChannelSender {
	switch channel {
	case config.ChannelEmail:
		return NewEmailSender(cfg.Email)
	case config.ChannelSlack:
		return NewSlackSender(cfg.Slack)
	case config.ChannelSMS:
		return NewSMSSender(cfg.SMS)
	case config.ChannelWebhook:
		return NewWebhookSender(cfg.Webhook)
	case config.ChannelPager:
		return NewPagerSender(cfg.Pager)
	case config.ChannelTelegram:
		return NewTelegramSender(cfg.Telegram)
	default:
		return nil
	}
}

// Channels returns configured channel list.
// Params: none.
// Returns: deterministic sender keys.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// Accepts reports whether one configured channel accepts a severity.
// Params: channel key and candidate severity.
// Returns: false for unconfigured channels.
func (d *Dispatcher) Accepts(channel string, severity domain.Severity) bool {
	if _, ok := d.senders[channel]; !ok {
		return false
	}
	return d.accepts(channel, severity)
}

// accepts applies the channel severity filter to one payload.
// Params: channel key and candidate severity.
// Returns: true when the filter is empty or includes the severity.
func (d *Dispatcher) accepts(channel string, severity domain.Severity) bool {
	filter := d.filters[channel]
	if len(filter) == 0 {
		return true
	}
	for _, accepted := range filter {
		if accepted == severity {
			return true
		}
	}
	return false
}

// Send renders and sends one notification with the channel retry policy.
// The channel severity filter is enforced here as well as at fan-out,
// so a payload outside the filter never reaches the transport.
// Params: destination channel and notification payload.
// Returns: final error after retries; permanent errors are never retried.
func (d *Dispatcher) Send(ctx context.Context, channel string, notification domain.Notification) error {
	sender, ok := d.senders[channel]
	if !ok {
		return permanent.Mark(fmt.Errorf("notify channel %q is not configured", channel))
	}
	if !d.accepts(channel, notification.Severity) {
		return permanent.Mark(fmt.Errorf("notify channel %q does not accept severity %q", channel, notification.Severity))
	}

	rendered := notification
	rendered.Channel = channel
	message, err := d.renderMessage(channel, rendered)
	if err != nil {
		return permanent.Mark(err)
	}
	rendered.Message = message

	return d.sendWithRetry(ctx, sender, rendered, d.retries[channel])
}

// renderMessage applies the channel template to the notification model.
// Params: channel key and outbound notification.
// Returns: rendered message body.
func (d *Dispatcher) renderMessage(channel string, notification domain.Notification) (string, error) {
	compiled, ok := d.templates[channel]
	if !ok {
		return notification.Message, nil
	}
	var rendered strings.Builder
	if err := compiled.Execute(&rendered, notification); err != nil {
		return "", fmt.Errorf("render notify template for channel %q: %w", channel, err)
	}
	return rendered.String(), nil
}

// sendWithRetry sends one notification with exponential backoff.
// Params: sender, payload, and retry policy for the sender channel.
// Returns: final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notification domain.Notification, retry config.NotifyRetry) error {
	if !retry.Enabled {
		return sender.Send(ctx, notification)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	var timer *time.Timer

	for {
		attempt++
		err := sender.Send(ctx, notification)
		if err == nil {
			stopTimer(timer)
			if retry.LogEachAttempt && attempt > 1 && d.logger != nil {
				d.logger.Info("notify send recovered after retries",
					"channel", sender.Channel(), "attempt", attempt)
			}
			return nil
		}
		if retry.LogEachAttempt && d.logger != nil {
			d.logger.Warn("notify send attempt failed",
				"channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			stopTimer(timer)
			return err
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			stopTimer(timer)
			return fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			stopTimer(timer)
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// stopTimer stops a retry timer and drains a pending fire.
// Params: possibly nil timer.
// Returns: nothing.
func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// postJSON posts one JSON payload and classifies the HTTP outcome.
// 4xx responses other than 408 and 429 are marked permanent so the
// retry loop gives up on malformed requests and bad credentials.
// Params: HTTP client, method, URL, headers, and encodable payload.
// Returns: transport or status error.
func postJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode payload: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	statusErr := fmt.Errorf("post %s: unexpected status %d", url, response.StatusCode)
	if response.StatusCode >= 400 && response.StatusCode < 500 &&
		response.StatusCode != http.StatusRequestTimeout && response.StatusCode != http.StatusTooManyRequests {
		return permanent.Mark(statusErr)
	}
	return statusErr
}

// httpTimeout converts configured seconds to client timeout.
// Params: timeout in seconds.
// Returns: default 10s for non-positive values.
func httpTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
