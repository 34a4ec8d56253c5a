package report

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
)

// PairEvent is the message published per confirmed pair.
type PairEvent struct {
	RunID    string  `json:"run_id"`
	IDA      string  `json:"id_a"`
	IDB      string  `json:"id_b"`
	Distance float64 `json:"distance"`
}

// KafkaSink publishes pairs in batches keyed by the first document ID.
// Each batch is retried with backoff.
type KafkaSink struct {
	pub       kafka.Publisher
	batchSize int
	retry     resilience.RetryConfig
}

// NewKafkaSink creates a sink publishing through pub.
func NewKafkaSink(pub kafka.Publisher, batchSize int) *KafkaSink {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &KafkaSink{pub: pub, batchSize: batchSize}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, run Run, pairs []indexer.Pair) error {
	batch := make([]kafka.Event, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := resilience.Retry(ctx, "publish-pairs", s.retry, func() error {
			return s.pub.PublishBatch(ctx, batch)
		})
		batch = batch[:0]
		return err
	}
	for _, p := range pairs {
		batch = append(batch, kafka.Event{
			Key: p.A,
			Value: PairEvent{
				RunID:    run.ID,
				IDA:      p.A,
				IDB:      p.B,
				Distance: p.Distance,
			},
		})
		if len(batch) == s.batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("publishing pair batch: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("publishing pair batch: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.pub.Close() }
