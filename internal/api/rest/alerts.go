package rest

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/alert"
	"github.com/shatzii/sentinel/internal/models"
)

type alertResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Alert   models.SecurityAlert `json:"alert"`
}

// ListAlerts handles GET /alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context())
	if err != nil {
		h.log.Error("list alerts failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list security alerts")
		return
	}
	if alerts == nil {
		alerts = []models.SecurityAlert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

// AcknowledgeAlert handles POST /alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	a, err := h.alerts.Acknowledge(r.Context(), mux.Vars(r)["id"], actor(r, req.User))
	if err != nil {
		h.transitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alertResponse{Success: true, Message: "Alert acknowledged successfully", Alert: a})
}

// ResolveAlert handles POST /alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User          string `json:"user"`
		Resolution    string `json:"resolution"`
		FalsePositive bool   `json:"falsePositive"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	a, err := h.alerts.Resolve(r.Context(), mux.Vars(r)["id"], models.Resolution{
		By:            actor(r, req.User),
		Note:          req.Resolution,
		FalsePositive: req.FalsePositive,
	})
	if err != nil {
		h.transitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alertResponse{Success: true, Message: "Alert resolved successfully", Alert: a})
}

func (h *Handler) transitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		respondFailure(w, http.StatusNotFound, "Alert not found", nil)
	case errors.Is(err, alert.ErrInvalidTransition):
		respondFailure(w, http.StatusConflict, "Alert cannot change to the requested status", err)
	default:
		h.log.Error("alert transition failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, "Failed to update security alert", err)
	}
}
