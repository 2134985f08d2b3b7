package alert

import (
	"context"
	"sync"
	"time"

	"github.com/shatzii/sentinel/internal/models"
)

// MemoryStore keeps alerts in process memory. Contents do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	mu       sync.RWMutex
	alerts   []models.SecurityAlert // newest first
	capacity int
	now      func() time.Time
}

// NewMemoryStore creates a store holding at most capacity alerts.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		alerts:   make([]models.SecurityAlert, 0, capacity+1),
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *MemoryStore) Store(_ context.Context, a models.SecurityAlert) (models.SecurityAlert, error) {
	a = normalize(a, s.now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, models.SecurityAlert{})
	copy(s.alerts[1:], s.alerts)
	s.alerts[0] = a
	if len(s.alerts) > s.capacity {
		s.alerts = s.alerts[:s.capacity]
	}
	return a.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SecurityAlert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = a.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.SecurityAlert{}, ErrNotFound
	}
	return s.alerts[i].Clone(), nil
}

func (s *MemoryStore) Acknowledge(_ context.Context, id, user string) (models.SecurityAlert, error) {
	return s.update(id, func(a *models.SecurityAlert, now time.Time) error {
		return a.Acknowledge(user, now)
	})
}

func (s *MemoryStore) Resolve(_ context.Context, id string, res models.Resolution) (models.SecurityAlert, error) {
	return s.update(id, func(a *models.SecurityAlert, now time.Time) error {
		return a.Resolve(res, now)
	})
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) update(id string, apply func(*models.SecurityAlert, time.Time) error) (models.SecurityAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.SecurityAlert{}, ErrNotFound
	}
	next := s.alerts[i].Clone()
	if err := apply(&next, s.now().UTC()); err != nil {
		return models.SecurityAlert{}, err
	}
	s.alerts[i] = next
	return next.Clone(), nil
}

func (s *MemoryStore) indexLocked(id string) int {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return i
		}
	}
	return -1
}
