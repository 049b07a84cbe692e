// Package events publishes security decisions and guard events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/segmentio/kafka-go"
)

// Envelope types
const (
	TypeDecision = "security_decision"
	TypeEvent    = "security_event"
)

// Envelope is the message value written to the topic
type Envelope struct {
	Type       string          `json:"type"`
	IP         string          `json:"ip"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes envelopes keyed by IP so one address stays on one partition
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewProducer creates a producer for the given brokers and topic
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("kafka producer initialized",
		slog.Any("brokers", brokers),
		slog.String("topic", topic),
	)

	return &Producer{writer: writer, topic: topic, logger: logger}
}

// newProducerWithWriter is used by tests to swap the kafka writer
func newProducerWithWriter(w messageWriter, topic string, logger *slog.Logger) *Producer {
	return &Producer{writer: w, topic: topic, logger: logger}
}

// PublishDecision publishes a persisted security decision
func (p *Producer) PublishDecision(ctx context.Context, d *models.SecurityDecision) error {
	return p.publish(ctx, TypeDecision, d.IP, d.CreatedAt, d)
}

// PublishEvent publishes a persisted guard event
func (p *Producer) PublishEvent(ctx context.Context, e *models.SecurityEvent) error {
	return p.publish(ctx, TypeEvent, e.IP, e.CreatedAt, e)
}

func (p *Producer) publish(ctx context.Context, kind, ip string, at time.Time, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	value, err := json.Marshal(Envelope{Type: kind, IP: ip, Payload: raw, OccurredAt: at})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ip),
		Value: value,
		Time:  at,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", kind, p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
