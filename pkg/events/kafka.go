package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventLog appends domain events to a kafka topic for downstream consumers
// (analytics, play history). It is an append-only feed, separate from the
// realtime bus: the bus is lossy fan-out, the log is durable.
type EventLog struct {
	writer *kafka.Writer
}

// LogRecord is one appended domain event.
type LogRecord struct {
	Type      EventType       `json:"type"`
	VenueID   string          `json:"venue_id"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEventLog(brokers []string, topic string) *EventLog {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &EventLog{writer: writer}
}

// Append writes one record. Keys are random so records spread across
// partitions; per-venue ordering is not promised here, consumers reconcile
// from timestamps.
func (l *EventLog) Append(ctx context.Context, eventType EventType, venueID, userID string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	record := LogRecord{
		Type:      eventType,
		VenueID:   venueID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payloadJSON,
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(uuid.New().String()),
		Value: recordJSON,
	}

	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (l *EventLog) Close() error {
	if err := l.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}
