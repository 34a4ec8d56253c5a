package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

// Collector buffers query events without blocking the request path and
// flushes them in batches to Kafka, to a local Aggregator, or both.
type Collector struct {
	pub           kafka.Publisher
	local         *Aggregator
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	stop          chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCollector creates a collector. Either pub or local may be nil.
func NewCollector(pub kafka.Publisher, local *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		pub:           pub,
		local:         local,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]QueryEvent, 0, c.batchSize)
		for {
			select {
			case event := <-c.eventCh:
				batch = append(batch, event)
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(ctx, batch)
				batch = batch[:0]
			case <-ctx.Done():
				c.final(batch)
				return
			case <-c.stop:
				c.final(batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"kafka", c.pub != nil,
	)
}

// Track enqueues event, dropping it if the buffer is full.
func (c *Collector) Track(event QueryEvent) {
	if event.Type == "" {
		event.Type = EventQuery
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close flushes buffered events and waits for the loop to exit. Start must
// have been called. Events tracked afterwards are discarded.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) final(batch []QueryEvent) {
drain:
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, event)
		default:
			break drain
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}

func (c *Collector) flush(ctx context.Context, batch []QueryEvent) {
	if len(batch) == 0 {
		return
	}
	if c.local != nil {
		for _, e := range batch {
			c.local.Record(e)
		}
	}
	if c.pub == nil {
		return
	}
	events := make([]kafka.Event, len(batch))
	for i, e := range batch {
		events[i] = kafka.Event{Key: string(e.Type), Value: e}
	}
	if err := c.pub.PublishBatch(ctx, events); err != nil {
		c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
