package rest

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
)

type initiatorRequest struct {
	User string `json:"user"`
}

type scanResponse struct {
	Success bool              `json:"success"`
	Scan    models.ScanResult `json:"scan"`
}

// RunScan handles POST /scan
func (h *Handler) RunScan(w http.ResponseWriter, r *http.Request) {
	var req initiatorRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.scans.RunScan(r.Context(), actor(r, req.User))
	if err != nil {
		h.log.Error("security scan failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, "Failed to run security scan", err)
		return
	}
	respondJSON(w, http.StatusOK, scanResponse{Success: true, Scan: result})
}

// RemediateAll handles POST /remediate-all
func (h *Handler) RemediateAll(w http.ResponseWriter, r *http.Request) {
	var req initiatorRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	report, err := h.scans.RemediateAll(r.Context(), actor(r, req.User))
	if err != nil {
		h.log.Error("remediation sweep failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, "Failed to remediate security issues", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
