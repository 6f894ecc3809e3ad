// Package audit publishes one record per handled webhook event to a Kafka
// topic. Publishing is best-effort and observability-only; failures never
// affect event handling.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"membership-bridge/internal/config"

	"github.com/segmentio/kafka-go"
)

const (
	defaultBatchSize      = 100
	defaultBatchTimeoutMs = 100
)

type Record struct {
	EventID    string    `json:"eventId"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewWriter(cfg config.Kafka) *kafka.Writer {
	batchSize := cfg.Writer.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	batchTimeoutMs := cfg.Writer.BatchTimeoutMs
	if batchTimeoutMs == 0 {
		batchTimeoutMs = defaultBatchTimeoutMs
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerURL),
		Topic:                  cfg.AuditTopic,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(batchTimeoutMs) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(writer *kafka.Writer, logger *slog.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, record Record) {
	value, err := json.Marshal(record)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marshalling audit record", "error", err)
		return
	}

	msg := kafka.Message{
		// Key by event id so redeliveries of the same event stay ordered.
		Key:   []byte(record.EventID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Error publishing audit record", "error", err)
	}
}
