package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/permanent"
)

// actionSpec binds one action name to its admin API endpoint.
// Params: relative path template with {entity} placeholder.
// Returns: request routing for one action kind.
type actionSpec struct {
	path string
}

// actionTable routes action names onto admin API endpoints. Unknown
// names fail permanently instead of being retried.
var actionTable = map[string]actionSpec{
	"scale_up_instances":  {path: "/entities/{entity}/scale-up"},
	"restart_function":    {path: "/entities/{entity}/restart"},
	"clear_cache":         {path: "/entities/{entity}/cache/clear"},
	"rollback_deployment": {path: "/entities/{entity}/rollback"},
	"optimize_code":       {path: "/tickets/optimize"},
	"increase_memory":     {path: "/entities/{entity}/memory/increase"},
	"enable_warm_pool":    {path: "/entities/{entity}/warm-pool/enable"},
}

// Known reports whether one action name has an endpoint binding.
// Params: action name.
// Returns: true for runnable actions.
func Known(action string) bool {
	_, ok := actionTable[strings.ToLower(strings.TrimSpace(action))]
	return ok
}

// Runner executes auto-actions against the platform admin API.
// Params: admin API base URL, timeout, and dry-run toggle from config.
// Returns: best-effort action executor.
type Runner struct {
	cfg    config.ActionsConfig
	client *http.Client
	clk    clock.Clock
	logger *slog.Logger
}

// NewRunner creates admin API action runner.
// Params: actions config, clock, and logger.
// Returns: initialized runner.
func NewRunner(cfg config.ActionsConfig, clk clock.Clock, logger *slog.Logger) *Runner {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		clk:    clk,
		logger: logger,
	}
}

// actionRequest is the admin API execution body.
type actionRequest struct {
	Action      string    `json:"action"`
	Entity      string    `json:"entity,omitempty"`
	AlertID     string    `json:"alert_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Run executes one named action for an entity.
// Dry-run mode logs the call and reports success without touching the
// admin API, which keeps staging environments side-effect free.
// Params: action name, target entity, and originating alert ID.
// Returns: permanent error for unknown actions, transport error otherwise.
func (r *Runner) Run(ctx context.Context, action, entity, alertID string) error {
	name := strings.ToLower(strings.TrimSpace(action))
	spec, ok := actionTable[name]
	if !ok {
		return permanent.Mark(fmt.Errorf("unknown action %q", action))
	}
	if strings.TrimSpace(r.cfg.BaseURL) == "" {
		return permanent.Mark(fmt.Errorf("actions base_url is not configured"))
	}

	if r.cfg.DryRun {
		if r.logger != nil {
			r.logger.Info("action dry-run", "action", name, "entity", entity, "alert_id", alertID)
		}
		return nil
	}

	url := strings.TrimRight(r.cfg.BaseURL, "/") + strings.ReplaceAll(spec.path, "{entity}", entity)
	body, err := json.Marshal(actionRequest{
		Action:      name,
		Entity:      entity,
		AlertID:     alertID,
		RequestedAt: r.clk.Now(),
	})
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode action request: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build action request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return fmt.Errorf("run action %s: %w", name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	statusErr := fmt.Errorf("run action %s: unexpected status %d", name, response.StatusCode)
	if response.StatusCode >= 400 && response.StatusCode < 500 &&
		response.StatusCode != http.StatusRequestTimeout && response.StatusCode != http.StatusTooManyRequests {
		return permanent.Mark(statusErr)
	}
	return statusErr
}
