// Package notify delivers consultation lifecycle events to interested
// parties. Delivery is strictly fire-and-forget: a sink failure is logged by
// its owner and never fails the operation that produced the event.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// EventType labels a lifecycle notification.
type EventType string

const (
	EventRequestCreated    EventType = "request_created"
	EventRequestAssigned   EventType = "request_assigned"
	EventStatusChanged     EventType = "status_changed"
	EventRequestReassigned EventType = "request_reassigned"
)

// Event carries the facts a notification transport needs.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	Patient   string    `json:"patient,omitempty"`
	Doctor    string    `json:"doctor,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Sink is the delivery transport.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log. It is the default transport
// for development and tests.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, event Event) error {
	s.logger.Info("notification",
		"type", string(event.Type),
		"request_id", event.RequestID,
		"patient", event.Patient,
		"doctor", event.Doctor,
		"status", event.Status,
	)
	return nil
}
