package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event
type EventType string

const (
	// Alert lifecycle events
	EventAlertAcknowledged EventType = "alert.acknowledged"
	EventAlertResolved     EventType = "alert.resolved"
	EventAlertRemediated   EventType = "alert.remediated"

	// Scan events
	EventScanStarted   EventType = "scan.started"
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"

	// Remediation sweep events
	EventRemediationSweep EventType = "remediation.sweep"

	// Test data seeding
	EventTestDataGenerated EventType = "testdata.generated"

	// Configuration events
	EventConfigChanged EventType = "config.changed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	EventType     EventType      `json:"event_type"`
	Result        Result         `json:"result"`
	User          string         `json:"user,omitempty"`
	SourceIP      string         `json:"source_ip,omitempty"`
	Resource      string         `json:"resource,omitempty"`
	ResourceType  string         `json:"resource_type,omitempty"`
	Action        string         `json:"action,omitempty"`
	Description   string         `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Error         string         `json:"error,omitempty"`
	DurationMs    int64          `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.NewString(),
		EventType:     eventType,
		Result:        ResultSuccess,
		Metadata:      make(map[string]any),
	}
}

func (e *Event) WithCorrelationID(id string) *Event {
	if id != "" {
		e.CorrelationID = id
	}
	return e
}

func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

func (e *Event) WithSourceIP(ip string) *Event {
	e.SourceIP = ip
	return e
}

func (e *Event) WithResource(resource, resourceType string) *Event {
	e.Resource = resource
	e.ResourceType = resourceType
	return e
}

func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

func (e *Event) WithDescription(format string, args ...any) *Event {
	e.Description = fmt.Sprintf(format, args...)
	return e
}

func (e *Event) WithMetadata(key string, value any) *Event {
	e.Metadata[key] = value
	return e
}

func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMs = d.Milliseconds()
	return e
}

// WithError marks the event failed and records the error text.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Result = ResultFailure
		e.Error = err.Error()
	}
	return e
}
