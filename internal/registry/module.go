package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shatzii/sentinel/internal/models"
)

var (
	// ErrUnknownModule is returned for module ids outside the catalog.
	ErrUnknownModule = errors.New("unknown security module")

	// ErrUnsupportedAction is returned when a module cannot apply an action.
	ErrUnsupportedAction = errors.New("remediation action not supported")

	// ErrNotApplicable is returned when an alert lacks what an action needs,
	// such as an account or a source address.
	ErrNotApplicable = errors.New("remediation not applicable to alert")

	// ErrModuleFailed is returned when remediation targets a failed module.
	ErrModuleFailed = errors.New("security module has failed")
)

// Module is a named security capability with health, counters, scan checks and
// remediation actions.
type Module interface {
	ID() string
	Name() string
	Description() string
	Status() models.ModuleStatus
	Metrics() map[string]any
	Scan(ctx context.Context) ([]models.Vulnerability, error)
	Remediate(ctx context.Context, req models.RemediationRequest) (models.RemediationResult, error)
}

// Check inspects live state and returns findings. ModuleID and ModuleName are
// filled in by the module.
type Check func(ctx context.Context) []models.Vulnerability

// ActionFunc applies one remediation action.
type ActionFunc func(ctx context.Context, req models.RemediationRequest) (models.RemediationResult, error)

// Base implements Module. Specialized modules embed it and register their
// checks and actions at construction.
type Base struct {
	id, name, description string

	mu       sync.RWMutex
	status   models.ModuleStatus
	reason   string
	checks   []Check
	actions  map[models.RemediationAction]ActionFunc
	extra    func() map[string]any
	counters map[string]*atomic.Int64
}

// NewBase creates an active module with the given counters set to zero.
func NewBase(id, name, description string, counters ...string) *Base {
	b := &Base{
		id:          id,
		name:        name,
		description: description,
		status:      models.ModuleActive,
		actions:     make(map[models.RemediationAction]ActionFunc),
		counters:    make(map[string]*atomic.Int64, len(counters)),
	}
	for _, c := range counters {
		b.counters[c] = new(atomic.Int64)
	}
	return b
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

func (b *Base) Status() models.ModuleStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetStatus changes the module health. reason is reported in metrics.
func (b *Base) SetStatus(status models.ModuleStatus, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.reason = reason
}

// AddCheck registers a scan check.
func (b *Base) AddCheck(c Check) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks = append(b.checks, c)
}

// Handle registers fn for action.
func (b *Base) Handle(action models.RemediationAction, fn ActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[action] = fn
}

// SetExtraMetrics registers fn to contribute computed values to Metrics.
func (b *Base) SetExtraMetrics(fn func() map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extra = fn
}

// Add increments counter by delta. Unknown counters are ignored.
func (b *Base) Add(counter string, delta int64) {
	if c, ok := b.counters[counter]; ok {
		c.Add(delta)
	}
}

// Count returns the current value of counter.
func (b *Base) Count(counter string) int64 {
	if c, ok := b.counters[counter]; ok {
		return c.Load()
	}
	return 0
}

func (b *Base) Metrics() map[string]any {
	out := make(map[string]any, len(b.counters)+2)
	for name, c := range b.counters {
		out[name] = c.Load()
	}
	b.mu.RLock()
	extra, reason := b.extra, b.reason
	b.mu.RUnlock()
	if extra != nil {
		for k, v := range extra() {
			out[k] = v
		}
	}
	if reason != "" {
		out["statusReason"] = reason
	}
	return out
}

// Scan reports module health first, then runs the checks of an active module.
func (b *Base) Scan(ctx context.Context) ([]models.Vulnerability, error) {
	b.mu.RLock()
	status, reason := b.status, b.reason
	checks := append([]Check(nil), b.checks...)
	b.mu.RUnlock()

	var out []models.Vulnerability
	switch status {
	case models.ModuleFailed:
		desc := fmt.Sprintf("%s has failed", b.name)
		if reason != "" {
			desc += ": " + reason
		}
		return []models.Vulnerability{b.finding(models.SeverityCritical, desc,
			fmt.Sprintf("Investigate the error log and restart %s", b.name))}, nil
	case models.ModuleInactive:
		return []models.Vulnerability{b.finding(models.SeverityHigh, fmt.Sprintf("%s is disabled", b.name),
			fmt.Sprintf("Remove %s from security.disabled_modules", b.id))}, nil
	}

	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, v := range check(ctx) {
			v.ModuleID, v.ModuleName = b.id, b.name
			out = append(out, v)
		}
	}
	return out, nil
}

func (b *Base) finding(sev models.Severity, desc, remediation string) models.Vulnerability {
	return models.Vulnerability{
		Severity:    sev,
		Description: desc,
		ModuleID:    b.id,
		ModuleName:  b.name,
		Remediation: remediation,
	}
}

// Remediate dispatches to the registered action. mark_resolved is always supported.
func (b *Base) Remediate(ctx context.Context, req models.RemediationRequest) (models.RemediationResult, error) {
	if b.Status() == models.ModuleFailed {
		return models.RemediationResult{}, fmt.Errorf("%w: %s", ErrModuleFailed, b.id)
	}
	b.mu.RLock()
	fn, ok := b.actions[req.Action]
	b.mu.RUnlock()
	if ok {
		return fn(ctx, req)
	}
	if req.Action == models.ActionMarkResolved {
		return models.RemediationResult{
			Success: true,
			Message: fmt.Sprintf("%s marked the issue as resolved", b.name),
		}, nil
	}
	return models.RemediationResult{}, fmt.Errorf("%w: %s cannot %s", ErrUnsupportedAction, b.id, req.Action)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
