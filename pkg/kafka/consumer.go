// Package kafka wraps segmentio/kafka-go for the platform's three topics:
// index-complete announcements, duplicate-pair reports and query analytics
// events. Values are JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

const defaultHandlerAttempts = 3

// MessageHandler processes one message. An error marked with
// resilience.Permanent is not retried; other errors are retried with backoff
// up to the handler attempt limit, after which the message is dropped.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerOption adjusts a Consumer before its reader is created.
type ConsumerOption func(*Consumer)

// WithGroupID overrides the configured consumer group.
func WithGroupID(id string) ConsumerOption {
	return func(c *Consumer) { c.rc.GroupID = id }
}

// WithHandlerAttempts sets how often a failing message is handed to the
// handler before it is committed and skipped.
func WithHandlerAttempts(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff sets the pause between fetch and handler retries.
func WithBackoff(b resilience.Backoff) ConsumerOption {
	return func(c *Consumer) { c.backoff = b }
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts messages by outcome.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Retried   int64 `json:"retried"`
	Dropped   int64 `json:"dropped"`
}

// Consumer fetches messages from one topic and commits each after its
// handler finishes.
type Consumer struct {
	rc       kafka.ReaderConfig
	reader   messageReader
	handler  MessageHandler
	attempts int
	backoff  resilience.Backoff
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error

	mu    sync.Mutex
	stats ConsumerStats
}

// NewConsumer creates a Consumer reading topic from the newest offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		rc: kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		},
		handler:  handler,
		attempts: defaultHandlerAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reader = kafka.NewReader(c.rc)
	c.logger = slog.Default().With("component", "kafka-consumer", "topic", topic, "group", c.rc.GroupID)
	return c
}

// Start runs the consume loop until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.Close()
	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			fetchFailures++
			c.logger.Error("failed to fetch message", "error", err, "consecutive", fetchFailures)
			if c.backoff.Sleep(ctx, fetchFailures) != nil {
				return nil
			}
			continue
		}
		fetchFailures = 0
		c.dispatch(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
	log.Debug("message received", "value_size", len(msg.Value))
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			c.count(func(s *ConsumerStats) { s.Processed++ })
			return
		}
		if resilience.IsPermanent(err) || attempt >= c.attempts || ctx.Err() != nil {
			c.count(func(s *ConsumerStats) { s.Dropped++ })
			log.Error("dropping message", "attempts", attempt, "error", err)
			return
		}
		c.count(func(s *ConsumerStats) { s.Retried++ })
		log.Warn("handler failed, retrying", "attempt", attempt, "error", err)
		if c.backoff.Sleep(ctx, attempt) != nil {
			return
		}
	}
}

func (c *Consumer) count(update func(*ConsumerStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// Stats returns message counts since start.
func (c *Consumer) Stats() ConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// DecodeJSON unmarshals a message value into T. Decoding failures are
// permanent.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, resilience.Permanent(fmt.Errorf("decoding kafka message: %w", err))
	}
	return result, nil
}
