package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/harborcrm/clover/internal/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MergeEvent tells downstream systems that a set of contact IDs collapsed into
// one surviving contact, so they can rewire their references.
type MergeEvent struct {
	EventType            string    `json:"event_type"` // contact.merged
	SchemaVersion        string    `json:"schema_version"`
	GroupID              string    `json:"group_id"`
	PrimaryContactID     string    `json:"primary_contact_id"`
	MergedContactIDs     []string  `json:"merged_contact_ids"`
	EmailsMigrated       int       `json:"emails_migrated"`
	TransactionsMigrated int       `json:"transactions_migrated"`
	Timestamp            time.Time `json:"timestamp"`
}

// PublishMergeEvent publishes a merge event, keyed by the surviving contact so
// all merges into one contact land on the same partition.
func (p *Producer) PublishMergeEvent(ctx context.Context, event *MergeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMergeEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.PrimaryContactID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "group_id", Value: []byte(event.GroupID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish merge event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":         event.EventType,
		"group_id":           event.GroupID,
		"primary_contact_id": event.PrimaryContactID,
	}).Debug("Published merge event")

	return nil
}
