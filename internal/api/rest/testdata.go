package rest

import (
	"fmt"
	"math/rand/v2"
	"net/http"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/api/middleware"
	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/models"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type sample struct {
	prefix  string
	sev     models.Severity
	typ     models.AlertType
	message string
	user    string
	ip      string
	ua      string
	details map[string]any
}

// demoAlerts covers every severity and the main alert types.
func demoAlerts() []sample {
	return []sample{
		{"auth", models.SeverityMedium, models.TypeAuthentication, "Failed login attempt for user ceoadmin",
			"ceoadmin", "192.168.1.100", browserUA, map[string]any{"attemptCount": 3}},
		{"authz", models.SeverityHigh, models.TypeAuthorization, "Unauthorized access attempt to admin section",
			"student1", "10.0.0.25", browserUA, map[string]any{"targetResource": "/api/admin/settings", "requiredRole": "admin"}},
		{"rate", models.SeverityMedium, models.TypeRateLimit, "API rate limit exceeded",
			"teacher1", "172.16.10.1", browserUA, map[string]any{"endpoint": "/api/courses", "requestsPerMinute": 120, "limit": 60}},
		{"file", models.SeverityHigh, models.TypeFileUpload, "Suspicious file upload detected",
			"student1", "8.8.8.8", browserUA, map[string]any{"fileName": "assignment.js.exe", "fileSize": "250KB", "rejectionReason": "executable file type"}},
		{"honey", models.SeverityMedium, models.TypeHoneypot, "Honeypot endpoint accessed",
			"unknown", "82.223.21.90", "Mozilla/5.0 zgrab/0.x", map[string]any{"endpoint": "/api/v1/admin/system-debug", "method": "GET", "ipReputation": "suspicious"}},
		{"sys", models.SeverityLow, models.TypeSystem, "Security configuration updated",
			"ceoadmin", "10.0.0.1", browserUA, map[string]any{"updatedBy": "ceoadmin", "changes": map[string]any{"rateLimitRequests": "100 -> 200", "sessionTimeout": "60 -> 30"}}},
		{"crit", models.SeverityCritical, models.TypeAuthorization, "Potential privilege escalation attempt detected",
			"student1", "10.0.0.30", browserUA, map[string]any{"originalRole": "student", "attemptedRole": "ceo", "method": "modified JWT token"}},
	}
}

// GenerateTestData handles GET /generate-test-data
func (h *Handler) GenerateTestData(w http.ResponseWriter, r *http.Request) {
	if !h.EnableTestData {
		respondError(w, http.StatusNotFound, "Test data generation is disabled")
		return
	}
	now := h.now().UTC()
	count := 0
	for _, s := range demoAlerts() {
		a := models.SecurityAlert{
			ID:        fmt.Sprintf("%s-%d-%d", s.prefix, now.UnixMilli(), rand.IntN(1000)),
			Severity:  s.sev,
			Type:      s.typ,
			Message:   s.message,
			Details:   s.details,
			Timestamp: now,
			User:      s.user,
			IP:        s.ip,
			UserAgent: s.ua,
			Status:    models.StatusActive,
		}
		if _, err := h.alerts.StoreAlert(r.Context(), a); err != nil {
			h.log.Error("store test alert failed", zap.String("alert_id", a.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to generate test security data")
			return
		}
		count++
	}

	event := audit.NewEvent(audit.EventTestDataGenerated).
		WithUser(actor(r, "")).
		WithSourceIP(middleware.ClientIP(r)).
		WithAction("generate_test_data").
		WithMetadata("alertCount", count).
		WithDescription("Generated %d test security alerts", count)
	if err := h.auditLog.Log(r.Context(), event); err != nil {
		h.log.Warn("audit write failed", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Test security data generated successfully",
		"alertCount": count,
	})
}
