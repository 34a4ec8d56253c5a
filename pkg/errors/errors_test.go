package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("lookup: %w", ErrDocumentNotFound), http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("put: %w", ErrConflict), http.StatusConflict},
		{ErrEmptyInput, http.StatusUnprocessableEntity},
		{ErrDegenerateComparison, http.StatusUnprocessableEntity},
		{ErrIndexNotReady, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrConfiguration, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppErrorWraps(t *testing.T) {
	err := Newf(ErrConflict, http.StatusConflict, "document %q exists", "A1")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, `conflicting document: document "A1" exists`, err.Error())
}

func TestCode(t *testing.T) {
	assert.Equal(t, "not_found", Code(fmt.Errorf("lookup: %w", ErrDocumentNotFound)))
	assert.Equal(t, "conflict", Code(Newf(ErrConflict, http.StatusConflict, "x")))
	assert.Equal(t, "no_signature", Code(ErrDegenerateComparison))
	assert.Equal(t, "timeout", Code(fmt.Errorf("q: %w", ErrTimeout)))
	assert.Equal(t, "internal", Code(errors.New("boom")))
	assert.Equal(t, "internal", Code(ErrConfiguration))
}
