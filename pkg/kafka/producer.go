// Package kafka publishes duplicate lifecycle events to the bus.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/harborcrm/aster/internal/tracing"
)

var compressionCodecs = map[string]kafka.Compression{
	"snappy": kafka.Snappy,
	"gzip":   kafka.Gzip,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
	"none":   0,
}

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer emits duplicate lifecycle events onto a single topic.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		codec = kafka.Snappy
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            codec,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
		topic:  cfg.Topic,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// DuplicateEvent describes a change in a duplicate candidate's lifecycle.
// EventType is one of duplicate.detected, duplicate.resolved, entity.merged.
type DuplicateEvent struct {
	EventType   string          `json:"event_type"`
	WorkspaceID string          `json:"workspace_id"`
	CandidateID string          `json:"candidate_id"`
	EntityType  string          `json:"entity_type"`
	EntityIDs   []string        `json:"entity_ids"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (p *Producer) message(event *DuplicateEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: p.topic,
		// Keying by candidate keeps events for one candidate in
		// partition order.
		Key:   []byte(event.CandidateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "workspace_id", Value: []byte(event.WorkspaceID)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
		},
	}, nil
}

// PublishDuplicateEvent publishes a duplicate lifecycle event to Kafka.
func (p *Producer) PublishDuplicateEvent(ctx context.Context, event *DuplicateEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDuplicateEvent")
	defer span.End()

	msg, err := p.message(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish duplicate event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":   event.EventType,
		"candidate_id": event.CandidateID,
		"entity_type":  event.EntityType,
	}).Debug("Published duplicate event")

	return nil
}
