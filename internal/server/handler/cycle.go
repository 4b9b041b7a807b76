package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// CycleHandler lets operators request an out-of-schedule cycle.
type CycleHandler struct {
	monitor Monitor
	logger  *slog.Logger
}

// NewCycleHandler creates a CycleHandler.
func NewCycleHandler(m Monitor, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{monitor: m, logger: logHandler(logger, "cycle")}
}

// Trigger enqueues one cycle. Requests made while one is already pending are
// coalesced into it.
// POST /api/cycle/trigger
func (h *CycleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	queued := h.monitor.Trigger()
	h.logger.InfoContext(r.Context(), "cycle trigger requested", slog.Bool("queued", queued))

	status, msg := "accepted", "cycle enqueued"
	if !queued {
		status, msg = "pending", "a cycle is already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       status,
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
