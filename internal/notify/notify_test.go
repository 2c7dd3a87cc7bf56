package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"text/template"

	"monitoring/internal/config"
	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

type flakySender struct {
	failures int
	calls    int
	err      error
	last     domain.Notification
}

func (s *flakySender) Channel() string { return "fake" }

func (s *flakySender) Send(_ context.Context, notification domain.Notification) error {
	s.calls++
	s.last = notification
	if s.calls <= s.failures {
		if s.err != nil {
			return s.err
		}
		return errors.New("transient failure")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dispatcherWith(sender ChannelSender, retry config.NotifyRetry) *Dispatcher {
	return &Dispatcher{
		senders:   map[string]ChannelSender{sender.Channel(): sender},
		channels:  []string{sender.Channel()},
		retries:   map[string]config.NotifyRetry{sender.Channel(): retry},
		templates: map[string]*template.Template{},
		logger:    testLogger(),
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	sender := &flakySender{failures: 2}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 5,
	})

	err := dispatcher.Send(context.Background(), "fake", domain.Notification{Message: "m"})
	if err != nil {
		t.Fatalf("send must recover, got %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("calls = %d, want 3", sender.calls)
	}
}

func TestSendStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	sender := &flakySender{failures: 10, err: permanent.Mark(errors.New("bad credentials"))}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 5,
	})

	err := dispatcher.Send(context.Background(), "fake", domain.Notification{Message: "m"})
	if !permanent.Is(err) {
		t.Fatalf("error must stay permanent, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, permanent errors must not be retried", sender.calls)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	sender := &flakySender{failures: 10}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 3,
	})

	err := dispatcher.Send(context.Background(), "fake", domain.Notification{Message: "m"})
	if err == nil {
		t.Fatal("exhausted retries must fail")
	}
	if sender.calls != 3 {
		t.Fatalf("calls = %d, want 3", sender.calls)
	}
}

func TestSendWithoutRetryPolicyFailsFast(t *testing.T) {
	t.Parallel()

	sender := &flakySender{failures: 10}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{})

	if err := dispatcher.Send(context.Background(), "fake", domain.Notification{Message: "m"}); err == nil {
		t.Fatal("disabled retry must surface the first failure")
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, want 1", sender.calls)
	}
}

func TestSendUnknownChannelIsPermanent(t *testing.T) {
	t.Parallel()

	dispatcher := NewDispatcher(config.NotifyConfig{}, testLogger())
	err := dispatcher.Send(context.Background(), "carrier-pigeon", domain.Notification{Message: "m"})
	if !permanent.Is(err) {
		t.Fatalf("unconfigured channel error must be permanent, got %v", err)
	}
}

func TestSendRendersDefaultTemplate(t *testing.T) {
	t.Parallel()

	sender := &flakySender{}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{})
	dispatcher.templates["fake"] = template.Must(template.New("t").Parse(defaultMessageTemplate))

	notification := domain.Notification{
		Severity: domain.SeverityHigh,
		RuleName: "low-success-rate",
		Message:  "success rate is 0.90",
	}
	if err := dispatcher.Send(context.Background(), "fake", notification); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := "[high] low-success-rate: success rate is 0.90"
	if sender.last.Message != want {
		t.Fatalf("rendered = %q, want %q", sender.last.Message, want)
	}

	// Entity-sourced payloads fall back to the entity name.
	anomaly := domain.Notification{
		Severity: domain.SeverityCritical,
		Entity:   "checkout",
		Message:  "deviation 10.0",
	}
	if err := dispatcher.Send(context.Background(), "fake", anomaly); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(sender.last.Message, "[critical] checkout:") {
		t.Fatalf("rendered = %q, want entity prefix", sender.last.Message)
	}
}

func TestSendRejectsFilteredSeverity(t *testing.T) {
	t.Parallel()

	sender := &flakySender{}
	dispatcher := dispatcherWith(sender, config.NotifyRetry{})
	dispatcher.filters = map[string][]domain.Severity{"fake": {domain.SeverityCritical}}

	err := dispatcher.Send(context.Background(), "fake", domain.Notification{
		Severity: domain.SeverityMedium,
		Message:  "m",
	})
	if !permanent.Is(err) {
		t.Fatalf("filtered severity must fail permanently, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("calls = %d, filtered payload must never reach the transport", sender.calls)
	}

	if err := dispatcher.Send(context.Background(), "fake", domain.Notification{
		Severity: domain.SeverityCritical,
		Message:  "m",
	}); err != nil {
		t.Fatalf("accepted severity must send, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, want 1", sender.calls)
	}
}

func TestDispatcherChannelsAndAccepts(t *testing.T) {
	t.Parallel()

	cfg := config.NotifyConfig{}
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = "http://127.0.0.1:1/hook"
	cfg.Webhook.Severities = []string{"high", "critical"}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = "http://127.0.0.1:1/slack"

	dispatcher := NewDispatcher(cfg, testLogger())
	channels := dispatcher.Channels()
	if len(channels) != 2 || channels[0] != "slack" || channels[1] != "webhook" {
		t.Fatalf("channels = %v, want sorted [slack webhook]", channels)
	}

	if dispatcher.Accepts("webhook", domain.SeverityLow) {
		t.Fatal("webhook must reject severities outside its filter")
	}
	if !dispatcher.Accepts("webhook", domain.SeverityCritical) {
		t.Fatal("webhook must accept critical")
	}
	// No filter accepts everything.
	if !dispatcher.Accepts("slack", domain.SeverityLow) {
		t.Fatal("unfiltered slack must accept low")
	}
	if dispatcher.Accepts("email", domain.SeverityCritical) {
		t.Fatal("disabled channel must not accept")
	}
}

func TestNewDispatcherFallsBackOnBadTemplate(t *testing.T) {
	t.Parallel()

	cfg := config.NotifyConfig{}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = "http://127.0.0.1:1/slack"
	cfg.Slack.Template = "{{.Broken"

	dispatcher := NewDispatcher(cfg, testLogger())
	message, err := dispatcher.renderMessage("slack", domain.Notification{
		Severity: domain.SeverityLow,
		RuleName: "r",
		Message:  "m",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if message != "[low] r: m" {
		t.Fatalf("rendered = %q, want default template output", message)
	}
}
