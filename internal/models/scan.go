package models

import "time"

// Vulnerability is one finding produced by a module scan.
type Vulnerability struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	ModuleID    string   `json:"moduleId"`
	ModuleName  string   `json:"moduleName"`
	Remediation string   `json:"remediation"`
}

// SeveritySummary counts findings per severity.
type SeveritySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add counts one finding of the given severity.
func (s *SeveritySummary) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh:
		s.High++
	case SeverityMedium:
		s.Medium++
	case SeverityLow:
		s.Low++
	}
}

// ModuleError records a module whose scan failed.
type ModuleError struct {
	ModuleID string `json:"moduleId"`
	Error    string `json:"error"`
}

// ScanResult is the outcome of one scan run. It is not persisted.
type ScanResult struct {
	ScanID          string          `json:"scanId"`
	Initiator       string          `json:"initiator"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     time.Time       `json:"completedAt"`
	ModulesScanned  int             `json:"modulesScanned"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Summary         SeveritySummary `json:"summary"`
	AlertsCreated   int             `json:"alertsCreated"`
	Errors          []ModuleError   `json:"errors,omitempty"`
}

// RemediationDetail is one successfully remediated alert.
type RemediationDetail struct {
	AlertID  string            `json:"alertId"`
	Type     AlertType         `json:"type"`
	Severity Severity          `json:"severity"`
	ModuleID string            `json:"moduleId"`
	Action   RemediationAction `json:"action"`
	// Result is the module's result message.
	Result string `json:"result"`
}

// RemediationFailure is one alert the sweep could not remediate.
type RemediationFailure struct {
	AlertID  string            `json:"alertId"`
	ModuleID string            `json:"moduleId"`
	Action   RemediationAction `json:"action"`
	Error    string            `json:"error"`
}

// RemediationReport is the outcome of a remediation sweep.
type RemediationReport struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Remediated int                  `json:"remediated"`
	Details    []RemediationDetail  `json:"details"`
	Failed     []RemediationFailure `json:"failed"`
}
