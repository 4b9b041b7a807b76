package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/service"
)

// OutcomesHandler serves recent cycles from the outcome stream.
type OutcomesHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOutcomesHandler creates an OutcomesHandler. bus may be nil when Redis is
// disabled.
func NewOutcomesHandler(bus domain.SignalBus, logger *slog.Logger) *OutcomesHandler {
	return &OutcomesHandler{bus: bus, logger: logHandler(logger, "outcomes")}
}

// ListRecent returns up to ?limit= (default 20, max 200) outcomes, newest
// first.
// GET /api/outcomes/recent
func (h *OutcomesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome stream is not configured")
		return
	}

	outs, err := service.RecentOutcomes(r.Context(), h.bus, parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read recent outcomes", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "outcome stream unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outs,
		"count":    len(outs),
	})
}
