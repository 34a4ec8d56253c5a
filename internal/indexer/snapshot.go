package indexer

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/minhash"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
)

// SaveSnapshot writes the arena to a new snapshot file in dataDir and returns
// its path. Signatures and band tables are not stored; they are rebuilt from
// the persisted coefficients on load.
func (e *Engine) SaveSnapshot(dataDir string) (string, error) {
	docs := e.Documents()
	records := make([]segment.Record, len(docs))
	for i, d := range docs {
		records[i] = segment.Record{ID: d.ID, Text: d.Text, Shingles: d.Shingles}
	}
	path, err := segment.NewWriter(dataDir).Write(segment.Manifest{
		ShingleSize:  e.shingleSize,
		Coefficients: e.family.Coefficients(),
	}, records)
	if err != nil {
		return "", err
	}
	e.logger.Info("snapshot written", "path", path, "documents", len(records))
	return path, nil
}

// LoadSnapshot restores an engine from a snapshot file. The hash family and
// shingle size come from the file; only Workers and KeepText are taken from
// opts. Handles are reassigned in stored order, so they match the engine
// that wrote the snapshot.
func LoadSnapshot(ctx context.Context, path string, opts Options) (*Engine, error) {
	r, err := segment.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	m := r.Manifest()
	family, err := minhash.FromCoefficients(m.Coefficients)
	if err != nil {
		return nil, fmt.Errorf("restoring hash family: %w", err)
	}
	opts.ShingleSize = m.ShingleSize
	e, err := NewEngineWithFamily(family, opts)
	if err != nil {
		return nil, err
	}
	records, err := r.Records()
	if err != nil {
		return nil, err
	}
	inputs := make([]Input, len(records))
	for i, rec := range records {
		inputs[i] = Input{ID: rec.ID, Text: rec.Text, Shingles: rec.Shingles}
	}
	if _, err := e.Build(ctx, inputs, nil); err != nil {
		return nil, fmt.Errorf("rebuilding index from snapshot: %w", err)
	}
	e.logger.Info("snapshot loaded", "path", path, "documents", len(records))
	return e, nil
}

// LoadLatestSnapshot restores the newest snapshot in dataDir. It returns
// ErrIndexNotReady when the directory holds none.
func LoadLatestSnapshot(ctx context.Context, dataDir string, opts Options) (*Engine, string, error) {
	path, err := segment.Latest(dataDir)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", fmt.Errorf("%w: no snapshot in %s", apperrors.ErrIndexNotReady, dataDir)
	}
	e, err := LoadSnapshot(ctx, path, opts)
	if err != nil {
		return nil, "", err
	}
	return e, path, nil
}
