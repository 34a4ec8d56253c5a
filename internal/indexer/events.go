package indexer

import "time"

// IndexCompleteEvent is published by the batch indexer after a snapshot has
// been written. Searchers reload SnapshotPath when they receive it.
type IndexCompleteEvent struct {
	RunID          string    `json:"run_id"`
	SnapshotPath   string    `json:"snapshot_path"`
	Documents      int       `json:"documents"`
	Skipped        int       `json:"skipped"`
	DuplicatePairs int       `json:"duplicate_pairs"`
	Threshold      float64   `json:"threshold"`
	CompletedAt    time.Time `json:"completed_at"`
}
