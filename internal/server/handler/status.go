package handler

import (
	"net/http"
)

// StatusHandler serves the scheduler counters and run mode.
type StatusHandler struct {
	mode    string
	monitor Monitor
	sinks   []string
	alerts  []string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, m Monitor, sinks, alerts []string) *StatusHandler {
	return &StatusHandler{mode: mode, monitor: m, sinks: sinks, alerts: alerts}
}

// GetStatus responds with the loop counters and which outputs are wired.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":         h.mode,
		"monitor":      h.monitor.Stats(),
		"sinks":        h.sinks,
		"alert_routes": h.alerts,
	})
}
