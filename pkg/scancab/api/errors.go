package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/scancab/scancab/pkg/scancab"
)

// errorResponse is the JSON body for error replies
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps core errors onto HTTP statuses: missing records are 404,
// bad input 400, invariant refusals 409, and transient store trouble 503
// with a retry hint.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *scancab.ValidationError

	switch {
	case errors.As(err, &ve):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: ve.Error()})
	case errors.Is(err, scancab.ErrDocumentNotFound),
		errors.Is(err, scancab.ErrMediaNotFound),
		errors.Is(err, scancab.ErrUserNotFound),
		errors.Is(err, scancab.ErrBlobNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: err.Error()})
	case errors.Is(err, scancab.ErrMediaAttached):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Error: err.Error()})
	case errors.Is(err, scancab.ErrInvalidPassword):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, errorResponse{Error: err.Error()})
	case errors.Is(err, scancab.ErrOwnerNotFound),
		errors.Is(err, scancab.ErrTxConflict):
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, errorResponse{Error: "temporary failure, try again"})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: "internal error"})
	}
}
