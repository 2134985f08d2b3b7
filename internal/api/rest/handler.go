// Package rest serves the security API under /api/security.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/auth"
	"github.com/shatzii/sentinel/internal/logs"
	"github.com/shatzii/sentinel/internal/metrics"
	"github.com/shatzii/sentinel/internal/models"
)

// AlertService is the alert capability the handlers use.
type AlertService interface {
	StoreAlert(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error)
	List(ctx context.Context) ([]models.SecurityAlert, error)
	Acknowledge(ctx context.Context, id, user string) (models.SecurityAlert, error)
	Resolve(ctx context.Context, id string, res models.Resolution) (models.SecurityAlert, error)
}

// ModuleSource lists module snapshots.
type ModuleSource interface {
	Views() []models.ModuleView
}

// ScanService runs scans and remediation sweeps.
type ScanService interface {
	RunScan(ctx context.Context, initiator string) (models.ScanResult, error)
	RemediateAll(ctx context.Context, initiator string) (models.RemediationReport, error)
}

// LogSource tails the named log files.
type LogSource interface {
	Recent(kind logs.Kind, maxLines int) ([]string, error)
}

// Handler manages the security API handlers.
type Handler struct {
	alerts   AlertService
	modules  ModuleSource
	scans    ScanService
	logs     LogSource
	auditLog audit.Logger
	log      *zap.Logger

	// Stream serves /alerts/stream; nil disables the route.
	Stream http.HandlerFunc
	// System samples runtime status for the dashboard.
	System func() metrics.SystemStatus
	// EnableTestData exposes /generate-test-data.
	EnableTestData bool

	now func() time.Time
}

func NewHandler(alerts AlertService, modules ModuleSource, scans ScanService, logSrc LogSource, auditLog audit.Logger, log *zap.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		alerts:   alerts,
		modules:  modules,
		scans:    scans,
		logs:     logSrc,
		auditLog: auditLog,
		log:      log,
		System:   func() metrics.SystemStatus { return metrics.SystemStatus{} },
		now:      time.Now,
	}
}

// SetupRoutes configures the security routes on router, normally the /api/security subrouter.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/status", h.GetStatus).Methods("GET")

	router.HandleFunc("/alerts", h.ListAlerts).Methods("GET")
	if h.Stream != nil {
		router.HandleFunc("/alerts/stream", h.Stream).Methods("GET")
	}
	router.HandleFunc("/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("POST")
	router.HandleFunc("/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")

	router.HandleFunc("/logs/{kind}", h.GetLogs).Methods("GET")
	router.HandleFunc("/metrics", h.GetMetrics).Methods("GET")

	router.HandleFunc("/scan", h.RunScan).Methods("POST")
	router.HandleFunc("/remediate-all", h.RemediateAll).Methods("POST")
	router.HandleFunc("/generate-test-data", h.GenerateTestData).Methods("GET")
}

// actor picks the user an action is attributed to: the body, then the token subject, then "system".
func actor(r *http.Request, user string) string {
	if user != "" {
		return user
	}
	if sub := auth.Subject(r.Context()); sub != "" {
		return sub
	}
	return "system"
}

type moduleStatus struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Status      models.ModuleStatus `json:"status"`
	Metrics     map[string]any      `json:"metrics"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	ActiveModules int                     `json:"activeModules"`
	TotalModules  int                     `json:"totalModules"`
	Modules       map[string]moduleStatus `json:"modules"`
	Timestamp     time.Time               `json:"timestamp"`
}

// GetStatus handles GET /status. Overall status is "critical" with any failed
// module, "degraded" with any inactive one, else "operational".
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	views := h.modules.Views()
	resp := statusResponse{
		Status:       "operational",
		TotalModules: len(views),
		Modules:      make(map[string]moduleStatus, len(views)),
		Timestamp:    h.now().UTC(),
	}
	for _, v := range views {
		resp.Modules[v.ID] = moduleStatus{Name: v.Name, Description: v.Description, Status: v.Status, Metrics: v.Metrics}
		switch v.Status {
		case models.ModuleActive:
			resp.ActiveModules++
		case models.ModuleFailed:
			resp.Status = "critical"
		case models.ModuleInactive:
			if resp.Status != "critical" {
				resp.Status = "degraded"
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
