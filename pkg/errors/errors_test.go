package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"rebuild conflict", fmt.Errorf("rebuild: %w", ErrRebuildInProgress), http.StatusConflict},
		{"bad corpus", fmt.Errorf("build: %w", ErrInvalidCorpus), http.StatusUnprocessableEntity},
		{"missing passage", fmt.Errorf("deleting: %w", ErrNotFound), http.StatusNotFound},
		{"no index", ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"source down", ErrSourceUnavailable, http.StatusServiceUnavailable},
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "short"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidCorpus, http.StatusUnprocessableEntity, "%d duplicate ids", 2)
	assert.ErrorIs(t, err, ErrInvalidCorpus)
	assert.Equal(t, "invalid corpus: 2 duplicate ids", err.Error())
}
