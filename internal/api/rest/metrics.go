package rest

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/metrics"
)

// GetMetrics handles GET /metrics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context())
	if err != nil {
		h.log.Error("metrics: list alerts failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to generate security metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics.Aggregate(metrics.Input{
		Alerts:  alerts,
		Modules: h.modules.Views(),
		System:  h.System(),
	}))
}
