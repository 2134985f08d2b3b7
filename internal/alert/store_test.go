package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shatzii/sentinel/internal/models"
)

// storeFactories runs every contract test against both backends.
func storeFactories(t *testing.T) map[string]func(capacity int) Store {
	return map[string]func(capacity int) Store{
		"memory": func(capacity int) Store { return NewMemoryStore(capacity) },
		"sqlite": func(capacity int) Store {
			s, err := NewSQLiteStore(":memory:", capacity)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func newAlert(id string, sev models.Severity, typ models.AlertType) models.SecurityAlert {
	return models.SecurityAlert{ID: id, Severity: sev, Type: typ, Message: "test " + id}
}

func TestStoreDefaultsStatusAndOrdersNewestFirst(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)

			stored, err := s.Store(ctx, newAlert("a1", models.SeverityHigh, models.TypeAuthentication))
			require.NoError(t, err)
			assert.Equal(t, models.StatusActive, stored.Status)
			assert.False(t, stored.Timestamp.IsZero())

			_, err = s.Store(ctx, newAlert("a2", models.SeverityLow, models.TypeSystem))
			require.NoError(t, err)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a2", list[0].ID)
			assert.Equal(t, "a1", list[1].ID)
		})
	}
}

func TestStoreIsBoundedWithFIFOEviction(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)

			for i := 0; i < 130; i++ {
				a := newAlert(fmt.Sprintf("a%d", i), models.SeverityLow, models.TypeSystem)
				_, err := s.Store(ctx, a)
				require.NoError(t, err)
				if i == 5 {
					// Status does not protect an alert from eviction.
					_, err := s.Acknowledge(ctx, "a5", "ops")
					require.NoError(t, err)
				}
			}

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, DefaultCapacity)
			assert.Equal(t, "a129", list[0].ID)
			assert.Equal(t, "a30", list[len(list)-1].ID)

			_, err = s.Get(ctx, "a5")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)
			_, err := s.Store(ctx, models.SecurityAlert{
				ID: "a1", Severity: models.SeverityCritical, Type: models.TypeAuthentication,
				Details: map[string]any{"moduleId": "auth-security"},
			})
			require.NoError(t, err)

			acked, err := s.Acknowledge(ctx, "a1", "analyst")
			require.NoError(t, err)
			assert.Equal(t, models.StatusAcknowledged, acked.Status)
			assert.Equal(t, "analyst", acked.AcknowledgedBy)
			require.NotNil(t, acked.AcknowledgedAt)

			resolved, err := s.Resolve(ctx, "a1", models.Resolution{By: "ops", Note: "patched"})
			require.NoError(t, err)
			assert.Equal(t, models.StatusResolved, resolved.Status)
			assert.Equal(t, "ops", resolved.ResolvedBy)
			assert.Equal(t, "patched", resolved.Details["resolution"])
			assert.Equal(t, "auth-security", resolved.Details["moduleId"])

			got, err := s.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, models.StatusResolved, got.Status)
			assert.Equal(t, "analyst", got.AcknowledgedBy)
		})
	}
}

func TestResolvedAlertsRejectFurtherTransitions(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)
			_, err := s.Store(ctx, newAlert("a1", models.SeverityMedium, models.TypeHoneypot))
			require.NoError(t, err)
			_, err = s.Resolve(ctx, "a1", models.Resolution{By: "ops", Note: "done"})
			require.NoError(t, err)

			_, err = s.Acknowledge(ctx, "a1", "late")
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			_, err = s.Resolve(ctx, "a1", models.Resolution{By: "late", Note: "again"})
			assert.True(t, errors.Is(err, ErrInvalidTransition))

			got, err := s.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, "ops", got.ResolvedBy)
			assert.Empty(t, got.AcknowledgedBy)
			assert.Equal(t, "done", got.Details["resolution"])
		})
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)
			_, err := s.Acknowledge(ctx, "missing", "ops")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Resolve(ctx, "missing", models.Resolution{By: "ops"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDuplicateIDsTargetNewest(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(DefaultCapacity)
			_, err := s.Store(ctx, newAlert("dup", models.SeverityLow, models.TypeSystem))
			require.NoError(t, err)
			_, err = s.Store(ctx, newAlert("dup", models.SeverityHigh, models.TypeSystem))
			require.NoError(t, err)

			acked, err := s.Acknowledge(ctx, "dup", "ops")
			require.NoError(t, err)
			assert.Equal(t, models.SeverityHigh, acked.Severity)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, models.StatusAcknowledged, list[0].Status)
			assert.Equal(t, models.StatusActive, list[1].Status)
		})
	}
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Store(ctx, newAlert(fmt.Sprintf("c%d", i), models.SeverityLow, models.TypeSystem))
		}(i)
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 50)
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	_, err := s.Store(ctx, models.SecurityAlert{ID: "a1", Details: map[string]any{"k": "v"}})
	require.NoError(t, err)

	list, _ := s.List(ctx)
	list[0].Details["k"] = "mutated"

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Details["k"])
}
