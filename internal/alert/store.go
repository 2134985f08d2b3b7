// Package alert holds the bounded alert log and the service that applies
// alert lifecycle side effects (security log, audit trail, listeners).
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/shatzii/sentinel/internal/models"
)

// DefaultCapacity is the number of alerts kept before the oldest is evicted.
const DefaultCapacity = 100

var (
	// ErrNotFound is returned for ids outside the current window, evicted or never stored.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidTransition aliases the model error so callers need one import.
	ErrInvalidTransition = models.ErrInvalidTransition
)

// Store is a bounded, insertion-ordered alert log.
type Store interface {
	// Store prepends the alert, evicting the oldest entry beyond capacity.
	Store(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error)

	// List returns all alerts, newest first.
	List(ctx context.Context) ([]models.SecurityAlert, error)

	// Get returns the newest alert with id.
	Get(ctx context.Context, id string) (models.SecurityAlert, error)

	Acknowledge(ctx context.Context, id, user string) (models.SecurityAlert, error)
	Resolve(ctx context.Context, id string, res models.Resolution) (models.SecurityAlert, error)

	Close() error
}

// normalize fills the fields every stored alert must carry.
func normalize(a models.SecurityAlert, now func() time.Time) models.SecurityAlert {
	a = a.Clone()
	if a.Status == "" {
		a.Status = models.StatusActive
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now().UTC()
	}
	if a.Severity == "" {
		a.Severity = models.SeverityLow
	}
	if a.Type == "" {
		a.Type = models.TypeSystem
	}
	return a
}
