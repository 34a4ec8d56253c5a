package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
)

// Reloader loads snapshots into an Executor.
type Reloader struct {
	exec   *Executor
	opts   indexer.Options
	retry  resilience.RetryConfig
	onSwap []func(ctx context.Context)

	mu      sync.Mutex
	current string
}

// NewReloader creates a reloader. opts supplies Workers and KeepText for
// restored engines.
func NewReloader(exec *Executor, opts indexer.Options) *Reloader {
	return &Reloader{
		exec: exec,
		opts: opts,
		retry: resilience.RetryConfig{
			Retryable: func(err error) bool {
				return !errors.Is(err, segment.ErrCorruptSnapshot)
			},
		},
	}
}

// OnSwap registers fn to run after every successful swap, e.g. cache
// invalidation.
func (r *Reloader) OnSwap(fn func(ctx context.Context)) {
	r.onSwap = append(r.onSwap, fn)
}

// Current returns the path of the loaded snapshot.
func (r *Reloader) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Load restores the snapshot at path, retrying read failures other than
// corruption, and
// swaps it in. The previous engine keeps serving until the swap.
func (r *Reloader) Load(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var engine *indexer.Engine
	err := resilience.Retry(ctx, "load-snapshot", r.retry, func() error {
		var lerr error
		engine, lerr = indexer.LoadSnapshot(ctx, path, r.opts)
		return lerr
	})
	if err != nil {
		r.count("error")
		return fmt.Errorf("loading snapshot %s: %w", path, err)
	}
	r.exec.Swap(engine)
	r.current = path
	r.count("ok")
	r.exec.logger.Info("index swapped", "snapshot", path, "documents", engine.Len())
	for _, fn := range r.onSwap {
		fn(ctx)
	}
	return nil
}

// LoadLatest loads the newest snapshot in dataDir.
func (r *Reloader) LoadLatest(ctx context.Context, dataDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	engine, path, err := indexer.LoadLatestSnapshot(ctx, dataDir, r.opts)
	if err != nil {
		r.count("error")
		return err
	}
	r.exec.Swap(engine)
	r.current = path
	r.count("ok")
	r.exec.logger.Info("index loaded", "snapshot", path, "documents", engine.Len())
	return nil
}

// HandleIndexComplete reloads the snapshot named by event unless it is
// already loaded.
func (r *Reloader) HandleIndexComplete(ctx context.Context, event indexer.IndexCompleteEvent) error {
	if event.SnapshotPath == "" || event.SnapshotPath == r.Current() {
		return nil
	}
	return r.Load(ctx, event.SnapshotPath)
}

func (r *Reloader) count(status string) {
	if r.exec.metrics != nil {
		r.exec.metrics.SnapshotReloads.WithLabelValues(status).Inc()
	}
}
