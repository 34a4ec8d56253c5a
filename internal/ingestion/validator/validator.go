// Package validator checks ingestion requests and reports per-field errors.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/ingestion"
)

const (
	maxIDLength = 255
	// MaxBatchSize bounds the documents accepted in one batch request.
	MaxBatchSize = 1000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocument checks the id and text of a single document. maxText of
// zero disables the length check.
func ValidateDocument(req *ingestion.IngestRequest, maxText int) error {
	errs := make(map[string]string)
	checkDocument(errs, "", req, maxText)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBatch checks the batch size, every document, and that no ID is
// repeated within the batch.
func ValidateBatch(req *ingestion.BatchRequest, maxText int) error {
	errs := make(map[string]string)
	switch {
	case len(req.Documents) == 0:
		errs["documents"] = "at least one document is required"
	case len(req.Documents) > MaxBatchSize:
		errs["documents"] = fmt.Sprintf("at most %d documents per batch", MaxBatchSize)
	}
	seen := make(map[string]int, len(req.Documents))
	for i := range req.Documents {
		prefix := fmt.Sprintf("documents[%d].", i)
		checkDocument(errs, prefix, &req.Documents[i], maxText)
		id := req.Documents[i].ID
		if first, dup := seen[id]; dup && id != "" {
			errs[prefix+"id"] = fmt.Sprintf("duplicates documents[%d].id", first)
		} else if !dup {
			seen[id] = i
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkDocument(errs map[string]string, prefix string, req *ingestion.IngestRequest, maxText int) {
	id := strings.TrimSpace(req.ID)
	switch {
	case id == "":
		errs[prefix+"id"] = "id is required"
	case len(req.ID) > maxIDLength:
		errs[prefix+"id"] = fmt.Sprintf("id must be at most %d bytes", maxIDLength)
	}
	switch {
	case strings.TrimSpace(req.Text) == "":
		errs[prefix+"text"] = "text is required"
	case maxText > 0 && len(req.Text) > maxText:
		errs[prefix+"text"] = fmt.Sprintf("text must be at most %d bytes", maxText)
	}
}
