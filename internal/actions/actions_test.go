package actions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/permanent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunPostsToActionEndpoint(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody actionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(config.ActionsConfig{BaseURL: server.URL}, clock.NewManual(now), testLogger())

	if err := runner.Run(context.Background(), "scale_up_instances", "checkout", "rule/x/1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotPath != "/entities/checkout/scale-up" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.Action != "scale_up_instances" || gotBody.Entity != "checkout" || gotBody.AlertID != "rule/x/1" {
		t.Fatalf("body = %+v", gotBody)
	}
	if !gotBody.RequestedAt.Equal(now) {
		t.Fatalf("requested_at = %v, want %v", gotBody.RequestedAt, now)
	}
}

func TestRunUnknownActionIsPermanent(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.ActionsConfig{BaseURL: "http://127.0.0.1:1"}, clock.RealClock{}, testLogger())
	err := runner.Run(context.Background(), "reboot_datacenter", "checkout", "")
	if !permanent.Is(err) {
		t.Fatalf("unknown action error must be permanent, got %v", err)
	}
}

func TestRunWithoutBaseURLIsPermanent(t *testing.T) {
	t.Parallel()

	runner := NewRunner(config.ActionsConfig{}, clock.RealClock{}, testLogger())
	err := runner.Run(context.Background(), "restart_function", "checkout", "")
	if !permanent.Is(err) {
		t.Fatalf("missing base_url error must be permanent, got %v", err)
	}
}

func TestRunDryRunSkipsTheAPI(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	runner := NewRunner(config.ActionsConfig{BaseURL: server.URL, DryRun: true}, clock.RealClock{}, testLogger())
	if err := runner.Run(context.Background(), "clear_cache", "checkout", ""); err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	if called {
		t.Fatal("dry-run must not call the admin API")
	}
}

func TestRunStatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"not found", http.StatusNotFound, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			runner := NewRunner(config.ActionsConfig{BaseURL: server.URL}, clock.RealClock{}, testLogger())
			err := runner.Run(context.Background(), "rollback_deployment", "checkout", "")
			if err == nil {
				t.Fatal("non-2xx must fail")
			}
			if permanent.Is(err) != tc.permanent {
				t.Fatalf("status %d: permanent = %v, want %v", tc.status, permanent.Is(err), tc.permanent)
			}
		})
	}
}

func TestKnown(t *testing.T) {
	t.Parallel()

	if !Known("scale_up_instances") || !Known(" Restart_Function ") {
		t.Fatal("table actions must be known")
	}
	if Known("format_disk") {
		t.Fatal("unlisted action must not be known")
	}
}
