package alert

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
)

// EventKind distinguishes alert notifications.
type EventKind string

const (
	EventStored  EventKind = "alert.stored"
	EventUpdated EventKind = "alert.updated"
)

// Event is published to listeners after a successful store or transition.
type Event struct {
	Kind  EventKind            `json:"type"`
	Alert models.SecurityAlert `json:"alert"`
}

// Listener receives alert events. It must not block.
type Listener func(Event)

// Service is the entry point for everything that records or changes alerts.
type Service struct {
	store    Store
	auditLog audit.Logger
	security *zap.Logger
	log      *zap.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewService wires a Store to its side-effect sinks. Nil loggers are replaced by no-ops.
func NewService(store Store, auditLog audit.Logger, security, app *zap.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	if security == nil {
		security = zap.NewNop()
	}
	if app == nil {
		app = zap.NewNop()
	}
	return &Service{store: store, auditLog: auditLog, security: security, log: app}
}

// Subscribe registers l for every subsequent alert event.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// StoreAlert records a new alert and writes it to the security log.
func (s *Service) StoreAlert(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error) {
	stored, err := s.store.Store(ctx, a)
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("store alert %s: %w", a.ID, err)
	}

	s.security.Info(stored.Message,
		zap.String("alert_id", stored.ID),
		zap.String("type", string(stored.Type)),
		zap.String("severity", string(stored.Severity)),
		zap.String("status", string(stored.Status)),
		zap.String("user", stored.User),
		zap.String("ip", stored.IP),
		zap.Any("details", stored.Details),
	)
	metrics.AlertsStoredTotal.WithLabelValues(string(stored.Type), string(stored.Severity)).Inc()
	s.publish(Event{Kind: EventStored, Alert: stored})
	return stored, nil
}

func (s *Service) List(ctx context.Context) ([]models.SecurityAlert, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (models.SecurityAlert, error) {
	return s.store.Get(ctx, id)
}

// Acknowledge moves an active alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id, user string) (models.SecurityAlert, error) {
	a, err := s.store.Acknowledge(ctx, id, user)
	if err != nil {
		return models.SecurityAlert{}, err
	}
	s.recordTransition(ctx, a, audit.EventAlertAcknowledged, user, "acknowledge",
		fmt.Sprintf("Security alert acknowledged (%s - %s)", a.Severity, a.Type))
	return a, nil
}

// Resolve closes an active or acknowledged alert.
func (s *Service) Resolve(ctx context.Context, id string, res models.Resolution) (models.SecurityAlert, error) {
	a, err := s.store.Resolve(ctx, id, res)
	if err != nil {
		return models.SecurityAlert{}, err
	}
	desc := fmt.Sprintf("Security alert resolved (%s - %s)", a.Severity, a.Type)
	if res.Note != "" {
		desc += ": " + res.Note
	}
	s.recordTransition(ctx, a, audit.EventAlertResolved, res.By, "resolve", desc)
	return a, nil
}

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) recordTransition(ctx context.Context, a models.SecurityAlert, et audit.EventType, user, action, desc string) {
	event := audit.NewEvent(et).
		WithUser(user).
		WithSourceIP(a.IP).
		WithResource(a.ID, "security_alert").
		WithAction(action).
		WithMetadata("severity", string(a.Severity)).
		WithMetadata("type", string(a.Type)).
		WithDescription("%s", desc)
	if err := s.auditLog.Log(ctx, event); err != nil {
		s.log.Warn("audit write failed", zap.String("alert_id", a.ID), zap.Error(err))
	}
	metrics.AlertTransitionsTotal.WithLabelValues(string(a.Status)).Inc()
	s.publish(Event{Kind: EventUpdated, Alert: a})
}

func (s *Service) publish(e Event) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}
