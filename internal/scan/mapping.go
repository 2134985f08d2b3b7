package scan

import (
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/registry"
)

var moduleAlertTypes = map[string]models.AlertType{
	registry.ModuleAuthSecurity:         models.TypeAuthentication,
	registry.ModuleRateLimiter:          models.TypeRateLimit,
	registry.ModuleFileGuard:            models.TypeFileUpload,
	registry.ModuleContentSecurity:      models.TypeXSS,
	registry.ModuleHoneypot:             models.TypeHoneypot,
	registry.ModuleThreatIntel:          models.TypeThreatIntel,
	registry.ModuleDBMonitor:            models.TypeSQLInjection,
	registry.ModuleVulnerabilityScanner: models.TypeVulnerability,
	registry.ModuleIPBlocker:            models.TypeSuspiciousActivity,
	registry.ModuleSecureSession:        models.TypeAuthentication,
	registry.ModuleSecurityScoring:      models.TypeSystem,
}

// AlertTypeForModule maps a module id to the alert type its findings raise.
// Unknown modules map to system.
func AlertTypeForModule(moduleID string) models.AlertType {
	if t, ok := moduleAlertTypes[moduleID]; ok {
		return t
	}
	return models.TypeSystem
}

var alertTypeModules = map[models.AlertType]string{
	models.TypeAuthentication:     registry.ModuleAuthSecurity,
	models.TypeFileUpload:         registry.ModuleFileGuard,
	models.TypeSQLInjection:       registry.ModuleDBMonitor,
	models.TypeXSS:                registry.ModuleContentSecurity,
	models.TypeRateLimit:          registry.ModuleRateLimiter,
	models.TypeHoneypot:           registry.ModuleHoneypot,
	models.TypeSuspiciousActivity: registry.ModuleIPBlocker,
}

// ModuleForAlertType picks the module that remediates alerts of type t when
// the alert does not name one.
func ModuleForAlertType(t models.AlertType) string {
	if id, ok := alertTypeModules[t]; ok {
		return id
	}
	return registry.ModuleSecurityScoring
}

// ActionForAlertType picks the remediation action for type t.
func ActionForAlertType(t models.AlertType) models.RemediationAction {
	switch t {
	case models.TypeAuthentication:
		return models.ActionForcePasswordReset
	case models.TypeSuspiciousActivity:
		return models.ActionBlockIP
	case models.TypeRateLimit:
		return models.ActionIncreaseMonitoring
	default:
		return models.ActionMarkResolved
	}
}

// ModuleForAlert prefers details.moduleId over the type-based default.
func ModuleForAlert(a models.SecurityAlert) string {
	if id := a.DetailString("moduleId"); id != "" {
		return id
	}
	return ModuleForAlertType(a.Type)
}

// ActionForAlert picks the action for a. Scan findings describe configuration,
// which no runtime action changes, so they are marked resolved.
func ActionForAlert(a models.SecurityAlert) models.RemediationAction {
	if a.DetailString("scanId") != "" {
		return models.ActionMarkResolved
	}
	return ActionForAlertType(a.Type)
}
