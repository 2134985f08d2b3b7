package models

// ModuleStatus is the health of a security module.
type ModuleStatus string

const (
	ModuleActive   ModuleStatus = "active"
	ModuleInactive ModuleStatus = "inactive"
	ModuleFailed   ModuleStatus = "failed"
)

// ModuleView is the read-only snapshot of a module used by the dashboard.
type ModuleView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      ModuleStatus   `json:"status"`
	Metrics     map[string]any `json:"metrics"`
}

// RemediationAction names an automated fix a module can apply.
type RemediationAction string

const (
	ActionForcePasswordReset RemediationAction = "force_password_reset"
	ActionBlockIP            RemediationAction = "block_ip"
	ActionIncreaseMonitoring RemediationAction = "increase_monitoring"
	ActionMarkResolved       RemediationAction = "mark_resolved"
)

// RemediationRequest is passed to a module. Alert carries the provenance
// (IP, user) some actions need.
type RemediationRequest struct {
	Action    RemediationAction
	Alert     SecurityAlert
	Initiator string
}

// RemediationResult is a module's answer to a remediation request.
type RemediationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
