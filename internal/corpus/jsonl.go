package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

const maxLineBytes = 16 << 20

// JSONLSource reads one JSON object per line. The document ID and text are
// taken from the configured fields; lines that are not objects, or lack a
// text field, are counted as malformed and skipped. A missing or empty ID is
// replaced by the 0-based line number.
type JSONLSource struct {
	path      string
	idField   string
	textField string
	logger    *slog.Logger
}

// NewJSONLSource creates a source reading path.
func NewJSONLSource(path, idField, textField string) *JSONLSource {
	return &JSONLSource{
		path:      path,
		idField:   idField,
		textField: textField,
		logger:    slog.Default().With("component", "corpus-jsonl", "path", path),
	}
}

// Load reads the whole file.
func (s *JSONLSource) Load(ctx context.Context) ([]Document, LoadStats, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()
	return s.Read(ctx, f)
}

// Read parses documents from r.
func (s *JSONLSource) Read(ctx context.Context, r io.Reader) ([]Document, LoadStats, error) {
	var stats LoadStats
	docs := make([]Document, 0, 1024)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := -1
	for sc.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		stats.Read++
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			stats.Malformed++
			s.logger.Debug("malformed corpus line", "line", line, "error", err)
			continue
		}
		text, ok := stringField(obj[s.textField])
		if !ok {
			stats.Malformed++
			s.logger.Debug("corpus line without text", "line", line, "field", s.textField)
			continue
		}
		id, _ := stringField(obj[s.idField])
		if id == "" {
			id = strconv.Itoa(line)
		}
		docs = append(docs, Document{ID: id, Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("reading corpus: %w", err)
	}
	s.logger.Info("corpus loaded", "documents", len(docs), "malformed", stats.Malformed)
	return docs, stats, nil
}

// stringField accepts JSON strings and numbers.
func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
