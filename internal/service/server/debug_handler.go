package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/metrics"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	latency *metrics.LatencyTracker
	logger  *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(latency *metrics.LatencyTracker, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		latency: latency,
		logger:  logger,
	}
}

// HandleLatency reports latency quantiles per operation. ?op= selects one.
func (h *DebugHandler) HandleLatency(w http.ResponseWriter, r *http.Request) {
	if h.latency == nil {
		writeJSON(w, http.StatusOK, []metrics.Stats{})
		return
	}

	if op := r.URL.Query().Get("op"); op != "" {
		stats, err := h.latency.GetStats(op)
		if err != nil {
			h.logger.Debug("No latency data", zap.String("op", op))
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	writeJSON(w, http.StatusOK, h.latency.GetAllStats())
}
