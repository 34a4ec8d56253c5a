// Package consumer reads index-complete events from Kafka so searchers can
// swap in the snapshot a batch run has just written.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
)

// ReloadFunc loads the snapshot announced by an event.
type ReloadFunc func(ctx context.Context, event indexer.IndexCompleteEvent) error

// IndexConsumer wraps a Kafka consumer on the index-complete topic.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Close releases the underlying reader.
func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}

// HandleIndexComplete returns a MessageHandler that passes each decoded
// event to reload. Malformed messages are logged and skipped. A failed reload
// is handed back to the consumer for retry unless the snapshot is corrupt.
func HandleIndexComplete(reload ReloadFunc) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.IndexCompleteEvent](value)
		if err != nil {
			logger.Error("failed to decode index-complete event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.SnapshotPath == "" {
			logger.Warn("index-complete event without snapshot path", "run_id", event.RunID)
			return nil
		}
		logger.Info("index-complete event received",
			"run_id", event.RunID,
			"snapshot", event.SnapshotPath,
			"documents", event.Documents,
		)
		if err := reload(ctx, event); err != nil {
			err = fmt.Errorf("reloading snapshot for run %s: %w", event.RunID, err)
			if errors.Is(err, segment.ErrCorruptSnapshot) {
				return resilience.Permanent(err)
			}
			return err
		}
		return nil
	}
}
