package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic as JSON records
// keyed by jti, so all events for one credential land on one
// partition in order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaConfig holds sink configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaSink connects a producer to the configured brokers.
func NewKafkaSink(cfg KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaSink{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Publish produces synchronously and waits for broker acknowledgement.
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.JTI),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and shuts the producer down.
func (s *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.Flush(ctx); err != nil && s.logger != nil {
		s.logger.Warn("audit sink closed with unflushed events", "error", err)
	}
	s.client.Close()
	return nil
}
