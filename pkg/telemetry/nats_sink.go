package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// natsRecord is the wire shape published for each log record; alerts are
// flattened so downstream consumers can filter on them without decoding
// the formatted text line.
type natsRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Source     string    `json:"source"`
	Message    string    `json:"message"`
	Attack     string    `json:"attack,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// NATSSink publishes each record as a JSON message to a JetStream subject.
type NATSSink struct {
	js      jetstream.JetStream
	subject string
	timeout time.Duration
}

// NewNATSSink builds a sink that publishes to subject via js.
func NewNATSSink(js jetstream.JetStream, subject string) *NATSSink {
	return &NATSSink{js: js, subject: subject, timeout: 5 * time.Second}
}

// Write publishes rec as JSON and waits for the JetStream ack.
func (s *NATSSink) Write(rec Record) error {
	payload := natsRecord{
		Timestamp: rec.Timestamp,
		Level:     rec.Level.String(),
		Source:    rec.Source,
		Message:   rec.Message,
	}

	if rec.Alert != nil {
		payload.Attack = rec.Alert.Kind.String()
		payload.Severity = rec.Alert.Severity.String()
		payload.Confidence = rec.Alert.Confidence
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telemetry record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.js.Publish(ctx, s.subject, body)
	if err != nil {
		return fmt.Errorf("publish telemetry record: %w", err)
	}

	return nil
}

// Flush is a no-op: JetStream publishes are acknowledged synchronously.
func (s *NATSSink) Flush() error { return nil }

// Close is a no-op: the JetStream connection is owned by the caller.
func (s *NATSSink) Close() error { return nil }
