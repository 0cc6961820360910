package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
)

// ProducerConfig holds Kafka producer configuration for the stage queues.
type ProducerConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
}

// DefaultProducerConfig returns sensible defaults. Stage handoffs are low
// volume, so batching is kept short to favor latency.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Producer enqueues stage messages onto the per-stage Kafka topics.
type Producer struct {
	writer  *kafka.Writer
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a stage-queue producer.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer:  w,
		brokers: cfg.Brokers,
		logger:  logger,
	}
}

// Enqueue publishes the message to the given stage's queue. Keying by
// traceId keeps all messages of one saga on one partition, preserving
// per-saga ordering.
func (p *Producer) Enqueue(ctx context.Context, stage domain.Step, msg *Message) error {
	msg.Stage = stage

	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal stage message: %w", err)
	}

	topic := TopicFor(stage)
	kmsg := kafka.Message{
		Topic: topic,
		Key:   []byte(msg.TraceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "stage", Value: []byte(stage)},
			{Key: "message_id", Value: []byte(msg.MessageID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		p.logger.ErrorContext(ctx, "failed to enqueue stage message",
			slog.String("topic", topic),
			slog.String("trace_id", msg.TraceID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("enqueue to %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "stage message enqueued",
		slog.String("topic", topic),
		slog.String("trace_id", msg.TraceID),
		slog.String("message_id", msg.MessageID),
	)

	return nil
}

// Ping checks broker connectivity by dialing the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers dials the given Kafka brokers and returns nil if at least one
// is reachable. Used as a standalone health check by consumer-only workers.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// Close closes the producer and flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
