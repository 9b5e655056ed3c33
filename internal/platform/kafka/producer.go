// Package kafka wraps the franz-go producer used to publish assessment
// lifecycle events for external observers.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"arbiter/internal/platform/config"
)

// Producer publishes records to a single topic.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer creates a Kafka producer from the provided configuration.
// Returns nil if no brokers are configured (Kafka not enabled).
func NewProducer(cfg config.Kafka, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Produce appends one record asynchronously. Delivery failures are logged,
// not returned: event publication must never block or fail an assessment.
func (p *Producer) Produce(ctx context.Context, key string, value []byte) {
	record := &kgo.Record{Key: []byte(key), Value: value}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.ErrorContext(ctx, "kafka produce failed",
				"topic", p.topic,
				"key", key,
				"error", err,
			)
		}
	})
}

// ProduceSync appends one record and blocks until the broker acknowledges it.
// Used by integration tests and the final flush path.
func (p *Producer) ProduceSync(ctx context.Context, key string, value []byte) error {
	record := &kgo.Record{Key: []byte(key), Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.ErrorContext(ctx, "kafka flush on close failed", "error", err)
	}
	p.client.Close()
}
