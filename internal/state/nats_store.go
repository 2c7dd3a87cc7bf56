package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"monitoring/internal/config"
	"monitoring/internal/domain"

	"github.com/nats-io/nats.go"
)

const derivedStreamMaxAge = 30 * 24 * time.Hour

// NATSStore persists alert instances in a JetStream KV bucket and
// derived records in append-only JetStream streams.
// Params: NATS connection, JetStream context, KV handle, and subjects.
// Returns: NATS-backed state store implementation.
type NATSStore struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	alertKV  nats.KeyValue
	settings config.NATSStateConfig
}

// NewNATSStore creates KV bucket/streams and returns NATS state backend.
// Params: NATS/JetStream settings from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSStateConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	alertKV, err := js.KeyValue(settings.AlertBucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open alert bucket %q: %w", settings.AlertBucket, err)
		}
		alertKV, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: settings.AlertBucket,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create alert bucket %q: %w", settings.AlertBucket, err)
		}
	}

	derived := []struct {
		stream  string
		subject string
	}{
		{settings.AnomalyStream, settings.AnomalySubject},
		{settings.TrendStream, settings.TrendSubject},
		{settings.ScalingStream, settings.ScalingSubject},
	}
	for _, target := range derived {
		if err := ensureStream(js, target.stream, target.subject); err != nil {
			nc.Close()
			return nil, err
		}
	}

	return &NATSStore{
		nc:       nc,
		js:       js,
		alertKV:  alertKV,
		settings: settings,
	}, nil
}

// ensureStream ensures one append-only derived-record stream exists.
// Params: JetStream context, stream name, and subject.
// Returns: stream create/lookup error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if err != nats.ErrStreamNotFound && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    derivedStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}

// GetInstance reads one instance and its KV revision.
// Params: alert ID key.
// Returns: instance payload, revision, or ErrNotFound.
func (s *NATSStore) GetInstance(_ context.Context, alertID string) (domain.AlertInstance, uint64, error) {
	entry, err := s.alertKV.Get(alertID)
	if err != nil {
		if err == nats.ErrKeyNotFound {
			return domain.AlertInstance{}, 0, ErrNotFound
		}
		return domain.AlertInstance{}, 0, fmt.Errorf("get instance: %w", err)
	}

	var instance domain.AlertInstance
	if err := json.Unmarshal(entry.Value(), &instance); err != nil {
		return domain.AlertInstance{}, 0, fmt.Errorf("decode instance: %w", err)
	}
	return instance, entry.Revision(), nil
}

// PutInstance writes instance payload unconditionally.
// Params: alert ID key and instance payload.
// Returns: new KV revision.
func (s *NATSStore) PutInstance(_ context.Context, alertID string, instance domain.AlertInstance) (uint64, error) {
	body, err := json.Marshal(instance)
	if err != nil {
		return 0, fmt.Errorf("encode instance: %w", err)
	}
	rev, err := s.alertKV.Put(alertID, body)
	if err != nil {
		return 0, fmt.Errorf("put instance: %w", err)
	}
	return rev, nil
}

// UpdateInstance updates instance payload using expected revision CAS.
// Params: alert ID key, expected revision, and replacement payload.
// Returns: new KV revision or ErrConflict.
func (s *NATSStore) UpdateInstance(_ context.Context, alertID string, expectedRevision uint64, instance domain.AlertInstance) (uint64, error) {
	body, err := json.Marshal(instance)
	if err != nil {
		return 0, fmt.Errorf("encode instance: %w", err)
	}
	rev, err := s.alertKV.Update(alertID, body, expectedRevision)
	if err != nil {
		if errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence") {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("update instance: %w", err)
	}
	return rev, nil
}

// ListAlertIDs lists all instance keys.
// Params: none.
// Returns: keys from alert bucket.
func (s *NATSStore) ListAlertIDs(_ context.Context) ([]string, error) {
	keys, err := s.alertKV.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// ListAlertIDsByRule lists keys by rule namespace prefix.
// Params: rule name namespace.
// Returns: matching IDs from alert bucket.
func (s *NATSStore) ListAlertIDsByRule(ctx context.Context, ruleName string) ([]string, error) {
	keys, err := s.ListAlertIDs(ctx)
	if err != nil {
		return nil, err
	}
	prefix := "rule/" + strings.ToLower(strings.TrimSpace(ruleName)) + "/"
	ids := make([]string, 0)
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, key)
		}
	}
	return ids, nil
}

// AppendAnomaly publishes one anomaly record to the anomaly stream.
// Params: context and immutable anomaly record.
// Returns: publish error.
func (s *NATSStore) AppendAnomaly(ctx context.Context, record domain.AnomalyRecord) error {
	return s.appendDerived(ctx, s.settings.AnomalySubject, record)
}

// AppendTrend publishes one trend estimate to the trend stream.
// Params: context and trend estimate payload.
// Returns: publish error.
func (s *NATSStore) AppendTrend(ctx context.Context, estimate domain.TrendEstimate) error {
	return s.appendDerived(ctx, s.settings.TrendSubject, estimate)
}

// AppendRecommendation publishes one scaling recommendation to the scaling stream.
// Params: context and advisory scaling record.
// Returns: publish error.
func (s *NATSStore) AppendRecommendation(ctx context.Context, recommendation domain.ScalingRecommendation) error {
	return s.appendDerived(ctx, s.settings.ScalingSubject, recommendation)
}

// appendDerived publishes one derived record as JSON to a subject.
// Params: context, stream subject, and encodable payload.
// Returns: encode/publish error.
func (s *NATSStore) appendDerived(ctx context.Context, subject string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode derived record: %w", err)
	}
	if _, err := s.js.Publish(subject, body, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish derived record: %w", err)
	}
	return nil
}

// Close closes underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
