package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists severities from most to least severe.
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity accepts any casing ("CRITICAL", "critical").
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	sev, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// AlertType is the closed set of alert classifications.
type AlertType string

const (
	TypeAuthentication     AlertType = "authentication"
	TypeAuthorization      AlertType = "authorization"
	TypeRateLimit          AlertType = "rate_limit"
	TypeFileUpload         AlertType = "file_upload"
	TypeInjection          AlertType = "injection"
	TypeSQLInjection       AlertType = "sql_injection"
	TypeXSS                AlertType = "xss"
	TypeHoneypot           AlertType = "honeypot"
	TypeSuspiciousActivity AlertType = "suspicious_activity"
	TypeVulnerability      AlertType = "vulnerability"
	TypeSystem             AlertType = "system"
	TypeThreatIntel        AlertType = "threat_intel"
	TypeAPIKey             AlertType = "api_key"
	TypeAPIAbuse           AlertType = "api_abuse"
)

// AllAlertTypes enumerates every AlertType. Tables keyed by AlertType are
// checked against it in tests.
var AllAlertTypes = []AlertType{
	TypeAuthentication, TypeAuthorization, TypeRateLimit, TypeFileUpload,
	TypeInjection, TypeSQLInjection, TypeXSS, TypeHoneypot,
	TypeSuspiciousActivity, TypeVulnerability, TypeSystem, TypeThreatIntel,
	TypeAPIKey, TypeAPIAbuse,
}

// ParseAlertType accepts any casing and rejects unknown types.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllAlertTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

func (t *AlertType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	at, err := ParseAlertType(raw)
	if err != nil {
		return err
	}
	*t = at
	return nil
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// ErrInvalidTransition is returned when a status change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// transitions lists every allowed status change. Anything else is rejected.
var transitions = map[AlertStatus]map[AlertStatus]bool{
	StatusActive:       {StatusAcknowledged: true, StatusResolved: true},
	StatusAcknowledged: {StatusResolved: true},
	StatusResolved:     {},
}

// CanTransition reports whether an alert in status from may move to status to.
// An empty from is treated as active.
func CanTransition(from, to AlertStatus) bool {
	if from == "" {
		from = StatusActive
	}
	return transitions[from][to]
}

// SecurityAlert is a recorded security-relevant event.
type SecurityAlert struct {
	ID             string         `json:"id"`
	Severity       Severity       `json:"severity"`
	Type           AlertType      `json:"type"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	User           string         `json:"user,omitempty"`
	IP             string         `json:"ip,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	Status         AlertStatus    `json:"status"`
	AcknowledgedBy string         `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	ResolvedBy     string         `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
}

// IsActive is true for active alerts and alerts with no status yet.
func (a SecurityAlert) IsActive() bool {
	return a.Status == "" || a.Status == StatusActive
}

// Clone returns a copy whose Details map can be mutated independently.
func (a SecurityAlert) Clone() SecurityAlert {
	c := a
	if a.Details != nil {
		c.Details = make(map[string]any, len(a.Details))
		for k, v := range a.Details {
			c.Details[k] = v
		}
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// DetailString returns details[key] when it is a non-empty string.
func (a SecurityAlert) DetailString(key string) string {
	if a.Details == nil {
		return ""
	}
	s, _ := a.Details[key].(string)
	return s
}

// Resolution describes how an alert was closed.
type Resolution struct {
	By            string
	Note          string
	FalsePositive bool
}

// Acknowledge applies the acknowledged transition in place.
func (a *SecurityAlert) Acknowledge(user string, at time.Time) error {
	if !CanTransition(a.Status, StatusAcknowledged) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusAcknowledged)
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = user
	a.AcknowledgedAt = &at
	return nil
}

// Resolve applies the resolved transition in place and merges the note into details.
func (a *SecurityAlert) Resolve(res Resolution, at time.Time) error {
	if !CanTransition(a.Status, StatusResolved) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusResolved)
	}
	a.Status = StatusResolved
	a.ResolvedBy = res.By
	a.ResolvedAt = &at
	if a.Details == nil {
		a.Details = map[string]any{}
	}
	if res.Note != "" {
		a.Details["resolution"] = res.Note
	}
	if res.FalsePositive {
		a.Details["falsePositive"] = true
	}
	return nil
}
