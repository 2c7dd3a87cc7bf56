package dispatchq

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"monitoring/internal/domain"
	"monitoring/internal/permanent"
)

// JobKind separates notification deliveries from auto-action executions.
type JobKind string

const (
	// KindNotification marks outbound channel delivery jobs.
	KindNotification JobKind = "notification"
	// KindAction marks admin API auto-action jobs.
	KindAction JobKind = "action"
)

// Job is one asynchronous dispatch task produced by an evaluation pass.
// Params: kind discriminator plus channel or action routing fields.
// Returns: queue unit consumed by dispatch workers.
type Job struct {
	ID           string              `json:"id"`
	Kind         JobKind             `json:"kind"`
	Channel      string              `json:"channel,omitempty"`
	Action       string              `json:"action,omitempty"`
	Entity       string              `json:"entity,omitempty"`
	AlertID      string              `json:"alert_id,omitempty"`
	Notification domain.Notification `json:"notification"`
	CreatedAt    time.Time           `json:"created_at"`
}

// DLQReason identifies why one dispatch job was dead-lettered.
// Params: categorized failure reason.
// Returns: machine-readable DLQ classification.
type DLQReason string

const (
	// DLQReasonPermanentError marks non-retryable processing failures.
	DLQReasonPermanentError DLQReason = "permanent_error"
	// DLQReasonMaxDeliverExceeded marks retries exhausted by queue max deliver policy.
	DLQReasonMaxDeliverExceeded DLQReason = "max_deliver_exceeded"
)

// DLQEntry is dead-letter payload for dispatch queue failures.
// Params: original job, failure metadata, and delivery counters.
// Returns: persisted DLQ record.
type DLQEntry struct {
	Job           Job       `json:"job"`
	Reason        DLQReason `json:"reason"`
	Error         string    `json:"error"`
	Attempts      uint64    `json:"attempts"`
	MaxDeliver    int       `json:"max_deliver"`
	Subject       string    `json:"subject"`
	FailedAt      time.Time `json:"failed_at"`
	OriginalMsgID string    `json:"original_msg_id,omitempty"`
}

// BuildJobID creates deterministic id for one dispatch task.
// The same alert transition enqueued twice yields the same id, which
// the JetStream producer uses for message deduplication.
// Params: job routing fields and notification payload.
// Returns: stable SHA1-based id string.
func BuildJobID(kind JobKind, channel, action string, notification domain.Notification) string {
	raw := fmt.Sprintf(
		"%s|%s|%s|%s|%s|%s|%d|%d|%s",
		kind,
		channel,
		action,
		notification.AlertID,
		notification.Status,
		notification.Severity,
		notification.EscalationLevel,
		notification.Timestamp.UnixNano(),
		notification.Message,
	)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Producer enqueues dispatch jobs.
// Params: context and queue job payload.
// Returns: enqueue error.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// Worker consumes queued jobs and acknowledges processing status.
// Params: close hook for shutdown lifecycle.
// Returns: queue worker lifecycle.
type Worker interface {
	Close() error
}

// IsPermanent reports whether a processing error must not be retried.
// Params: processing error.
// Returns: true when worker must dead-letter instead of redeliver.
func IsPermanent(err error) bool {
	return permanent.Is(err)
}
