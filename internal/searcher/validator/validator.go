// Package validator checks query requests before they reach the executor and
// reports per-field failures.
package validator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const maxIDLength = 255

// QueryRequest is the JSON body accepted by the query endpoint.
type QueryRequest struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold"`
	Insert    bool    `json:"insert"`
}

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

// Limits bound what a query may carry.
type Limits struct {
	MaxTextLength int
	AllowInsert   bool
}

// ValidateQuery checks text length, threshold range and insert permissions.
// Empty text is allowed; it resolves to no signature.
func ValidateQuery(req *QueryRequest, limits Limits) error {
	errs := make(map[string]string)
	if limits.MaxTextLength > 0 && len(req.Text) > limits.MaxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", limits.MaxTextLength)
	}
	if !(req.Threshold >= 0 && req.Threshold <= 1) {
		errs["threshold"] = "threshold must be within [0, 1]"
	}
	if req.Insert {
		switch {
		case !limits.AllowInsert:
			errs["insert"] = "inserting documents is disabled"
		case strings.TrimSpace(req.ID) == "":
			errs["id"] = "id is required when insert is set"
		}
	}
	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ParseThreshold parses an optional threshold query parameter. An empty
// string yields 0, meaning the server default.
func ParseThreshold(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ValidationError{Fields: map[string]string{"threshold": "threshold must be a number"}}
	}
	if !(t >= 0 && t <= 1) {
		return 0, &ValidationError{Fields: map[string]string{"threshold": "threshold must be within [0, 1]"}}
	}
	return t, nil
}
