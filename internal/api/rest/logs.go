package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/logs"
)

const maxLogLines = 1000

// GetLogs handles GET /logs/{kind}?lines=N
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	kind := logs.Kind(mux.Vars(r)["kind"])
	lines := logs.DefaultMaxLines
	if s := r.URL.Query().Get("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = min(n, maxLogLines)
	}

	entries, err := h.logs.Recent(kind, lines)
	if err != nil {
		if errors.Is(err, logs.ErrUnknownLog) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("Unknown log %q", kind))
			return
		}
		h.log.Error("read log failed", zap.String("kind", string(kind)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read %s logs", kind))
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
