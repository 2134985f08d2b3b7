// Package scan runs security scans, turns serious findings into alerts and
// sweeps active alerts through automated remediation.
package scan

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/pkg/tracing"
	"github.com/shatzii/sentinel/internal/registry"
)

// Registry is the module capability the engine drives.
type Registry interface {
	Scan(ctx context.Context) (registry.ScanReport, error)
	RemediateVulnerability(ctx context.Context, moduleID string, req models.RemediationRequest) (models.RemediationResult, error)
}

// Alerts is the alert capability the engine drives.
type Alerts interface {
	StoreAlert(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error)
	List(ctx context.Context) ([]models.SecurityAlert, error)
	Resolve(ctx context.Context, id string, res models.Resolution) (models.SecurityAlert, error)
}

// Counter receives scan bookkeeping, normally the vulnerability-scanner module.
type Counter interface {
	Add(counter string, delta int64)
}

// Engine coordinates scans and remediation sweeps.
type Engine struct {
	registry Registry
	alerts   Alerts
	auditLog audit.Logger
	log      *zap.Logger
	timeout  time.Duration
	counter  Counter
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTimeout bounds each scan. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithCounter records scans on c.
func WithCounter(c Counter) Option {
	return func(e *Engine) { e.counter = c }
}

func NewEngine(reg Registry, alerts Alerts, auditLog audit.Logger, log *zap.Logger, opts ...Option) *Engine {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{registry: reg, alerts: alerts, auditLog: auditLog, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunScan scans every module and stores an alert for each critical or high finding.
func (e *Engine) RunScan(ctx context.Context, initiator string) (models.ScanResult, error) {
	ctx, span := tracing.StartSpanWithAttributes(ctx, "scan.run", attribute.String("initiator", initiator))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result := models.ScanResult{
		ScanID:          "scan-" + uuid.NewString(),
		Initiator:       initiator,
		StartedAt:       e.now().UTC(),
		Vulnerabilities: []models.Vulnerability{},
	}
	e.writeAudit(ctx, audit.NewEvent(audit.EventScanStarted).
		WithCorrelationID(result.ScanID).
		WithUser(initiator).
		WithAction("scan").
		WithDescription("Security scan started by %s", initiator))

	report, err := e.registry.Scan(ctx)
	if err != nil {
		span.RecordError(err)
		e.writeAudit(ctx, audit.NewEvent(audit.EventScanFailed).
			WithCorrelationID(result.ScanID).
			WithUser(initiator).
			WithAction("scan").
			WithError(err).
			WithDescription("Security scan failed"))
		return models.ScanResult{}, fmt.Errorf("scan %s: %w", result.ScanID, err)
	}

	result.ModulesScanned = report.ModulesScanned
	result.Errors = report.Errors
	if report.Vulnerabilities != nil {
		result.Vulnerabilities = report.Vulnerabilities
	}
	for _, v := range result.Vulnerabilities {
		result.Summary.Add(v.Severity)
		metrics.ScanFindingsTotal.WithLabelValues(string(v.Severity)).Inc()
		if v.Severity != models.SeverityCritical && v.Severity != models.SeverityHigh {
			continue
		}
		// One bad finding must not cost the others their alerts.
		if _, err := e.alerts.StoreAlert(ctx, e.vulnerabilityAlert(v, result.ScanID, initiator)); err != nil {
			e.log.Warn("failed to store scan finding",
				zap.String("scan_id", result.ScanID), zap.String("module", v.ModuleID), zap.Error(err))
			continue
		}
		result.AlertsCreated++
	}
	result.CompletedAt = e.now().UTC()

	duration := result.CompletedAt.Sub(result.StartedAt)
	metrics.ScanDurationSeconds.Observe(duration.Seconds())
	if e.counter != nil {
		e.counter.Add(registry.CounterScansRun, 1)
	}
	span.SetAttributes(
		attribute.Int("scan.findings", len(result.Vulnerabilities)),
		attribute.Int("scan.alerts_created", result.AlertsCreated),
	)
	e.writeAudit(ctx, audit.NewEvent(audit.EventScanCompleted).
		WithCorrelationID(result.ScanID).
		WithUser(initiator).
		WithAction("scan").
		WithDuration(duration).
		WithMetadata("vulnerabilities", len(result.Vulnerabilities)).
		WithMetadata("alertsCreated", result.AlertsCreated).
		WithDescription("Security scan completed with %d findings", len(result.Vulnerabilities)))
	return result, nil
}

func (e *Engine) vulnerabilityAlert(v models.Vulnerability, scanID, initiator string) models.SecurityAlert {
	now := e.now()
	if initiator == "" {
		initiator = "system"
	}
	return models.SecurityAlert{
		ID:        fmt.Sprintf("vuln-%d-%d", now.UnixMilli(), rand.IntN(1000)),
		Severity:  v.Severity,
		Type:      AlertTypeForModule(v.ModuleID),
		Message:   "Security scan detected: " + v.Description,
		Timestamp: now.UTC(),
		User:      initiator,
		Status:    models.StatusActive,
		Details: map[string]any{
			"moduleId":    v.ModuleID,
			"moduleName":  v.ModuleName,
			"remediation": v.Remediation,
			"scanId":      scanID,
		},
	}
}

// RemediateAll applies the type-specific action to every active alert. Failures
// are logged and reported; they never stop the sweep.
func (e *Engine) RemediateAll(ctx context.Context, initiator string) (models.RemediationReport, error) {
	ctx, span := tracing.StartSpanWithAttributes(ctx, "remediation.sweep", attribute.String("initiator", initiator))
	defer span.End()

	all, err := e.alerts.List(ctx)
	if err != nil {
		span.RecordError(err)
		return models.RemediationReport{}, fmt.Errorf("list alerts: %w", err)
	}

	report := models.RemediationReport{
		Success: true,
		Details: []models.RemediationDetail{},
		Failed:  []models.RemediationFailure{},
	}
	var active []models.SecurityAlert
	for _, a := range all {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		report.Message = "No active security issues to remediate"
		return report, nil
	}

	for _, a := range active {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, models.RemediationFailure{AlertID: a.ID, Error: err.Error()})
			continue
		}
		detail, err := e.remediateOne(ctx, a, initiator, span)
		if err != nil {
			e.log.Warn("remediation failed",
				zap.String("alert_id", a.ID),
				zap.String("module", detail.ModuleID),
				zap.String("action", string(detail.Action)),
				zap.Error(err))
			metrics.RemediationsTotal.WithLabelValues(string(detail.Action), "failure").Inc()
			report.Failed = append(report.Failed, models.RemediationFailure{
				AlertID:  a.ID,
				ModuleID: detail.ModuleID,
				Action:   detail.Action,
				Error:    err.Error(),
			})
			continue
		}
		metrics.RemediationsTotal.WithLabelValues(string(detail.Action), "success").Inc()
		report.Details = append(report.Details, detail)
	}

	report.Remediated = len(report.Details)
	noun := "issues"
	if report.Remediated == 1 {
		noun = "issue"
	}
	report.Message = fmt.Sprintf("Successfully remediated %d security %s", report.Remediated, noun)

	e.writeAudit(ctx, audit.NewEvent(audit.EventRemediationSweep).
		WithUser(initiator).
		WithAction("remediate_all").
		WithMetadata("remediated", report.Remediated).
		WithMetadata("failed", len(report.Failed)).
		WithDescription("%s", report.Message))
	return report, nil
}

func (e *Engine) remediateOne(ctx context.Context, a models.SecurityAlert, initiator string, span trace.Span) (models.RemediationDetail, error) {
	detail := models.RemediationDetail{
		AlertID:  a.ID,
		Type:     a.Type,
		Severity: a.Severity,
		ModuleID: ModuleForAlert(a),
		Action:   ActionForAlert(a),
	}
	span.AddEvent("remediate", trace.WithAttributes(
		attribute.String("alert.id", a.ID),
		attribute.String("module", detail.ModuleID),
		attribute.String("action", string(detail.Action)),
	))

	res, err := e.registry.RemediateVulnerability(ctx, detail.ModuleID, models.RemediationRequest{
		Action:    detail.Action,
		Alert:     a,
		Initiator: initiator,
	})
	if err != nil {
		return detail, err
	}
	if !res.Success {
		return detail, fmt.Errorf("module %s reported failure: %s", detail.ModuleID, res.Message)
	}
	detail.Result = res.Message

	if _, err := e.alerts.Resolve(ctx, a.ID, models.Resolution{
		By:   initiator,
		Note: "Automatically remediated: " + res.Message,
	}); err != nil {
		return detail, fmt.Errorf("resolve alert: %w", err)
	}

	e.writeAudit(ctx, audit.NewEvent(audit.EventAlertRemediated).
		WithUser(initiator).
		WithSourceIP(a.IP).
		WithResource(a.ID, "security_alert").
		WithAction(string(detail.Action)).
		WithMetadata("moduleId", detail.ModuleID).
		WithMetadata("severity", string(a.Severity)).
		WithMetadata("type", string(a.Type)).
		WithDescription("Auto-remediated security issue (%s - %s)", a.Severity, a.Type))
	return detail, nil
}

func (e *Engine) writeAudit(ctx context.Context, event *audit.Event) {
	if err := e.auditLog.Log(ctx, event); err != nil {
		e.log.Warn("audit write failed", zap.String("event_type", string(event.EventType)), zap.Error(err))
	}
}
