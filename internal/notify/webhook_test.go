package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"monitoring/internal/config"
	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

func TestWebhookSendsStructuredPayload(t *testing.T) {
	t.Parallel()

	var got domain.Notification
	var header atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("X-Auth"))
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewWebhookSender(config.WebhookChannel{
		URL:     server.URL,
		Headers: map[string]string{"X-Auth": "token"},
	})
	notification := domain.Notification{
		Source:   domain.SourceAlert,
		AlertID:  "rule/low-success-rate/1",
		Severity: domain.SeverityHigh,
		Metric:   "success_rate",
		Value:    0.9,
		Message:  "success rate is low",
	}
	if err := sender.Send(context.Background(), notification); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.AlertID != notification.AlertID || got.Severity != notification.Severity {
		t.Fatalf("payload = %+v", got)
	}
	if header.Load() != "token" {
		t.Fatal("static header must be forwarded")
	}
}

func TestWebhookStatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"request timeout", http.StatusRequestTimeout, false},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			sender := NewWebhookSender(config.WebhookChannel{URL: server.URL})
			err := sender.Send(context.Background(), domain.Notification{Message: "m"})
			if err == nil {
				t.Fatal("non-2xx must fail")
			}
			if permanent.Is(err) != tc.permanent {
				t.Fatalf("status %d: permanent = %v, want %v", tc.status, permanent.Is(err), tc.permanent)
			}
		})
	}
}

func TestWebhookMissingURLFailsPermanently(t *testing.T) {
	t.Parallel()

	sender := NewWebhookSender(config.WebhookChannel{})
	err := sender.Send(context.Background(), domain.Notification{Message: "m"})
	if !permanent.Is(err) {
		t.Fatalf("missing url error must be permanent, got %v", err)
	}
}
