// Package errors defines the sentinel errors shared by the indexing core and
// the services, plus an AppError wrapper that carries an HTTP status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration marks invalid index parameters: signature length not
	// divisible by rows per band, mismatched coefficient tables, bad primes.
	ErrConfiguration = errors.New("invalid index configuration")
	// ErrEmptyInput marks a document whose shingle set is empty. It yields
	// no signature and is skipped, never indexed.
	ErrEmptyInput = errors.New("empty shingle set")
	// ErrDegenerateComparison is returned when a Jaccard distance is
	// requested between two empty sets.
	ErrDegenerateComparison = errors.New("jaccard distance of two empty sets")

	ErrDocumentNotFound = errors.New("document not found")
	ErrConflict         = errors.New("conflicting document")
	ErrInvalidInput     = errors.New("invalid input")
	ErrIndexNotReady    = errors.New("index not ready")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

type class struct {
	sentinels []error
	status    int
	code      string
}

var classes = []class{
	{[]error{ErrDocumentNotFound}, http.StatusNotFound, "not_found"},
	{[]error{ErrInvalidInput}, http.StatusBadRequest, "invalid_input"},
	{[]error{ErrConflict}, http.StatusConflict, "conflict"},
	{[]error{ErrEmptyInput, ErrDegenerateComparison}, http.StatusUnprocessableEntity, "no_signature"},
	{[]error{ErrIndexNotReady}, http.StatusServiceUnavailable, "index_not_ready"},
	{[]error{ErrTimeout}, http.StatusServiceUnavailable, "timeout"},
}

func classify(err error) (class, bool) {
	for _, c := range classes {
		for _, s := range c.sentinels {
			if errors.Is(err, s) {
				return c, true
			}
		}
	}
	return class{}, false
}

// HTTPStatusCode maps err to a response status. An AppError's own status
// wins over its sentinel.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	if c, ok := classify(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// Code is the stable machine-readable name of err's sentinel, "internal"
// when it has none.
func Code(err error) string {
	if c, ok := classify(err); ok {
		return c.code
	}
	return "internal"
}
