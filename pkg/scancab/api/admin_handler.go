package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/scancab/scancab/pkg/scancab"
)

// AdminHandler exposes the maintenance sweeps over HTTP
type AdminHandler struct {
	sweeper *scancab.Sweeper
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sweeper *scancab.Sweeper, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{sweeper: sweeper, logger: logger}
}

// Routes returns the admin routes
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sweep/media", h.SweepOrphanMedia)
	r.Post("/sweep/blobs", h.SweepOrphanBlobs)
	return r
}

// sweepResponse reports a sweep run
type sweepResponse struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// SweepOrphanMedia deletes media records that no document references
func (h *AdminHandler) SweepOrphanMedia(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SweepOrphanMedia(r.Context())
	if err != nil {
		h.logger.Error("orphan media sweep failed", "error", err)
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sweepResponse{Scanned: result.Scanned, Deleted: result.Deleted, Failed: result.Failed})
}

// SweepOrphanBlobs deletes blobs that no media record references
func (h *AdminHandler) SweepOrphanBlobs(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SweepOrphanBlobs(r.Context())
	if err != nil {
		h.logger.Error("orphan blob sweep failed", "error", err)
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sweepResponse{Scanned: result.Scanned, Deleted: result.Deleted, Failed: result.Failed})
}
