package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"monitoring/internal/domain"
	"monitoring/internal/lifecycle"
	"monitoring/internal/monitor"
	"monitoring/internal/state"
)

// SnapshotSink receives decoded snapshots from ingest interfaces.
// Params: context and validated snapshot payload.
// Returns: check pass result and processing error.
type SnapshotSink interface {
	PushSnapshot(ctx context.Context, snapshot domain.MetricSnapshot) (lifecycle.CheckResult, error)
}

// Trigger runs an immediate evaluation pass on demand.
// Params: context.
// Returns: structured pass result.
type Trigger interface {
	TriggerNow(ctx context.Context) monitor.TriggerResult
}

// AlertAdmin applies operator transitions to alert instances.
// Params: alert identity plus transition-specific fields.
// Returns: transition error.
type AlertAdmin interface {
	Acknowledge(ctx context.Context, alertID, by string) error
	Resolve(ctx context.Context, alertID, cause string) error
	Suppress(ctx context.Context, alertID string, duration time.Duration) error
}

// SnapshotHandler decodes JSON snapshots and forwards them to the sink.
// Params: sink receives validated snapshots, max body limits payload size.
// Returns: HTTP handler for the snapshot endpoint.
type SnapshotHandler struct {
	sink        SnapshotSink
	maxBodySize int64
}

// NewSnapshotHandler creates snapshot ingest HTTP handler.
// Params: sink and max request body size in bytes.
// Returns: configured handler.
func NewSnapshotHandler(sink SnapshotSink, maxBodySize int64) *SnapshotHandler {
	return &SnapshotHandler{sink: sink, maxBodySize: maxBodySize}
}

// ServeHTTP handles one incoming snapshot request.
// Params: HTTP request/response writer pair.
// Returns: 202 with the check result, 400 on bad payloads.
func (h *SnapshotHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	snapshot, err := domain.DecodeSnapshot(body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.sink.PushSnapshot(request.Context(), snapshot)
	if err != nil {
		writeError(writer, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(writer, http.StatusAccepted, result)
}

// TriggerHandler exposes the administrative trigger-now endpoint.
// Params: trigger collaborator.
// Returns: HTTP handler producing structured pass results.
type TriggerHandler struct {
	trigger Trigger
}

// NewTriggerHandler creates admin trigger HTTP handler.
// Params: trigger collaborator.
// Returns: configured handler.
func NewTriggerHandler(trigger Trigger) *TriggerHandler {
	return &TriggerHandler{trigger: trigger}
}

// ServeHTTP runs one immediate evaluation pass.
// A pass already in flight yields ran=false with 200; the trigger path
// reports instead of queueing.
// Params: HTTP request/response writer pair.
// Returns: 200 with structured result.
func (h *TriggerHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(writer, http.StatusOK, h.trigger.TriggerNow(request.Context()))
}

// alertTransitionRequest is the operator transition body.
type alertTransitionRequest struct {
	AlertID     string `json:"alert_id"`
	By          string `json:"by,omitempty"`
	Cause       string `json:"cause,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// AlertAdminHandler routes operator transitions on alert instances.
// Paths under the prefix: acknowledge, resolve, suppress.
// Params: path prefix and admin collaborator.
// Returns: HTTP handler for operator endpoints.
type AlertAdminHandler struct {
	prefix string
	admin  AlertAdmin
}

// NewAlertAdminHandler creates operator transition HTTP handler.
// Params: mount prefix (e.g. "/alerts/") and admin collaborator.
// Returns: configured handler.
func NewAlertAdminHandler(prefix string, admin AlertAdmin) *AlertAdminHandler {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &AlertAdminHandler{prefix: prefix, admin: admin}
}

// ServeHTTP applies one operator transition.
// Params: HTTP request/response writer pair.
// Returns: 200 on success, 400/404/409 on rejections.
func (h *AlertAdminHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body alertTransitionRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, 1<<16)).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.AlertID) == "" {
		writeError(writer, http.StatusBadRequest, "alert_id is required")
		return
	}

	var err error
	switch strings.TrimPrefix(request.URL.Path, h.prefix) {
	case "acknowledge":
		err = h.admin.Acknowledge(request.Context(), body.AlertID, body.By)
	case "resolve":
		err = h.admin.Resolve(request.Context(), body.AlertID, body.Cause)
	case "suppress":
		err = h.admin.Suppress(request.Context(), body.AlertID, time.Duration(body.DurationSec)*time.Second)
	default:
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(writer, transitionStatus(err), err.Error())
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"alert_id": body.AlertID, "result": "ok"})
}

// transitionStatus maps transition errors onto HTTP status codes.
// Params: transition error.
// Returns: 404 for missing instances, 409 otherwise.
func transitionStatus(err error) int {
	if errors.Is(err, state.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}

// writeJSON writes one JSON response body.
// Params: writer, status code, and encodable payload.
// Returns: nothing; encode failures are unrecoverable mid-response.
func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

// writeError writes one JSON error body.
// Params: writer, status code, and message.
// Returns: nothing.
func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}
