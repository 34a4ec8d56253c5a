package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleIndexComplete(t *testing.T) {
	var got []indexer.IndexCompleteEvent
	handle := HandleIndexComplete(func(_ context.Context, event indexer.IndexCompleteEvent) error {
		got = append(got, event)
		return nil
	})

	value, err := json.Marshal(indexer.IndexCompleteEvent{RunID: "r1", SnapshotPath: "/data/snap_1.ndss", Documents: 10})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("r1"), value))
	require.Len(t, got, 1)
	assert.Equal(t, "/data/snap_1.ndss", got[0].SnapshotPath)
	assert.Equal(t, 10, got[0].Documents)

	assert.NoError(t, handle(context.Background(), nil, []byte("{broken")))
	empty, err := json.Marshal(indexer.IndexCompleteEvent{RunID: "r2"})
	require.NoError(t, err)
	assert.NoError(t, handle(context.Background(), nil, empty))
	assert.Len(t, got, 1)
}

func TestHandleIndexCompleteReloadFailure(t *testing.T) {
	boom := errors.New("disk unreadable")
	handle := HandleIndexComplete(func(context.Context, indexer.IndexCompleteEvent) error { return boom })
	value, err := json.Marshal(indexer.IndexCompleteEvent{RunID: "r3", SnapshotPath: "/data/snap_3.ndss"})
	require.NoError(t, err)
	err = handle(context.Background(), nil, value)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "r3")
}

func TestHandleIndexCompleteCorruptSnapshot(t *testing.T) {
	handle := HandleIndexComplete(func(context.Context, indexer.IndexCompleteEvent) error {
		return fmt.Errorf("loading: %w", segment.ErrCorruptSnapshot)
	})
	value, err := json.Marshal(indexer.IndexCompleteEvent{RunID: "r4", SnapshotPath: "/data/snap_4.ndss"})
	require.NoError(t, err)
	err = handle(context.Background(), nil, value)
	assert.True(t, resilience.IsPermanent(err))
	assert.ErrorIs(t, err, segment.ErrCorruptSnapshot)
}
