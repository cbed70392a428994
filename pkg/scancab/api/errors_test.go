package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scancab/scancab/pkg/scancab"
)

func TestWriteErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &scancab.ValidationError{Field: "tags", Msg: "bad"}, http.StatusBadRequest},
		{"document not found", scancab.ErrDocumentNotFound, http.StatusNotFound},
		{"media not found", scancab.ErrMediaNotFound, http.StatusNotFound},
		{"attached media", scancab.ErrMediaAttached, http.StatusConflict},
		{"invalid password", scancab.ErrInvalidPassword, http.StatusForbidden},
		{"conflict exhaustion", scancab.ErrTxConflict, http.StatusServiceUnavailable},
		{"owner vanished", scancab.ErrOwnerNotFound, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			writeError(rec, req, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("wrapped operation errors unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		writeError(rec, req, &scancab.DocumentError{Op: "update", Err: scancab.ErrTxConflict})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
