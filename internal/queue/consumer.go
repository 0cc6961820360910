package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
)

// maxHandlerAttempts is how many times a stage handler is attempted in
// process before the message is handed to the dead-letter queue. Business
// failures never reach this path, they are recorded on the saga record;
// only infrastructure errors (store or downstream unavailable) retry.
const maxHandlerAttempts = 3

// Handler processes one stage message.
type Handler func(ctx context.Context, msg *Message) error

// ConsumerConfig holds Kafka consumer configuration for one stage queue.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Stage    domain.Step
	MinBytes int
	MaxBytes int
}

// Consumer reads one stage's queue and dispatches each message to the bound
// handler, one at a time.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	handler   Handler
	dlq       *DLQProducer
	groupID   string
	closeOnce sync.Once
}

// NewConsumer creates a consumer for the given stage's topic. The DLQ
// producer may be nil, in which case poison messages are skipped after the
// retry budget with only a log line.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *DLQProducer, logger *slog.Logger) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes == 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 1 << 20
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    TopicFor(cfg.Stage),
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	})

	return &Consumer{
		reader:  r,
		logger:  logger,
		handler: handler,
		dlq:     dlq,
		groupID: cfg.GroupID,
	}
}

// Start consumes messages until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("stage consumer started",
		slog.String("topic", c.reader.Config().Topic),
		slog.String("group", c.groupID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stage consumer stopping", slog.String("topic", c.reader.Config().Topic))
			return c.Close()
		default:
			kmsg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
				continue
			}

			msg, err := UnmarshalMessage(kmsg.Value)
			if err != nil {
				c.logger.Error("failed to unmarshal stage message",
					slog.String("error", err.Error()),
					slog.String("topic", kmsg.Topic),
				)
				c.deadLetter(ctx, kmsg, err)
				c.commit(ctx, kmsg)
				continue
			}

			if err := c.handleWithRetry(ctx, msg); err != nil {
				c.logger.Error("handler failed after all attempts, dead-lettering",
					slog.String("trace_id", msg.TraceID),
					slog.String("topic", kmsg.Topic),
					slog.Int64("offset", kmsg.Offset),
					slog.String("error", err.Error()),
				)
				c.deadLetter(ctx, kmsg, err)
			}

			c.commit(ctx, kmsg)
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg *Message) error {
	var lastErr error
	for attempt := 1; attempt <= maxHandlerAttempts; attempt++ {
		lastErr = c.handler(ctx, msg)
		if lastErr == nil {
			return nil
		}

		c.logger.Warn("stage handler failed",
			slog.String("trace_id", msg.TraceID),
			slog.String("stage", string(msg.Stage)),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxHandlerAttempts),
			slog.String("error", lastErr.Error()),
		)

		if attempt < maxHandlerAttempts {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func (c *Consumer) deadLetter(ctx context.Context, kmsg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, kmsg, cause, c.groupID); err != nil {
		c.logger.Error("failed to dead-letter message",
			slog.String("topic", kmsg.Topic),
			slog.Int64("offset", kmsg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) commit(ctx context.Context, kmsg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, kmsg); err != nil {
		c.logger.Error("failed to commit message", slog.String("error", err.Error()))
	}
}

// Close closes the consumer. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
