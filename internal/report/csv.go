package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer"
)

// CSVHeader is the column layout of the pair report.
var CSVHeader = []string{"id_a", "id_b", "distance", "text_a", "text_b"}

// CSVSink writes one row per pair. The file is replaced atomically on every
// run. Text columns are left empty unless includeText is set.
type CSVSink struct {
	path        string
	includeText bool
}

// NewCSVSink creates a sink writing to path.
func NewCSVSink(path string, includeText bool) *CSVSink {
	return &CSVSink{path: path, includeText: includeText}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, run Run, pairs []indexer.Pair) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := WriteCSV(ctx, tmp, pairs, s.includeText); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("renaming report: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error { return nil }

// WriteCSV encodes pairs with CSVHeader to w.
func WriteCSV(ctx context.Context, w io.Writer, pairs []indexer.Pair, includeText bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	row := make([]string, len(CSVHeader))
	for i, p := range pairs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row[0] = p.A
		row[1] = p.B
		row[2] = strconv.FormatFloat(p.Distance, 'f', 6, 64)
		row[3], row[4] = "", ""
		if includeText {
			row[3], row[4] = p.TextA, p.TextB
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
