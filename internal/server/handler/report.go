package handler

import (
	"net/http"
)

// ReportHandler serves the most recent cycle.
type ReportHandler struct {
	monitor Monitor
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(m Monitor) *ReportHandler {
	return &ReportHandler{monitor: m}
}

// Latest returns the last cycle outcome as JSON, or the rendered report as
// plain text with ?format=text.
// GET /api/report/latest
func (h *ReportHandler) Latest(w http.ResponseWriter, r *http.Request) {
	out, ok := h.monitor.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no cycle has completed yet")
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.ReportTitle + "\n\n" + out.ReportText + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
