package alert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/models"
)

func newTestService(t *testing.T) (*Service, string, *observer.ObservedLogs) {
	t.Helper()
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	auditLog, err := audit.NewLogger(&audit.Config{Path: auditPath, MaxSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	core, observed := observer.New(zapcore.InfoLevel)
	return NewService(NewMemoryStore(DefaultCapacity), auditLog, zap.New(core), nil), auditPath, observed
}

func TestServiceStoreWritesSecurityLogAndPublishes(t *testing.T) {
	svc, _, securityLog := newTestService(t)
	var events []Event
	svc.Subscribe(func(e Event) { events = append(events, e) })

	_, err := svc.StoreAlert(context.Background(), models.SecurityAlert{
		ID: "a1", Severity: models.SeverityHigh, Type: models.TypeXSS, Message: "Reflected XSS payload", IP: "10.0.0.9",
	})
	require.NoError(t, err)

	entries := securityLog.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Reflected XSS payload", entries[0].Message)
	assert.Equal(t, "10.0.0.9", entries[0].ContextMap()["ip"])

	require.Len(t, events, 1)
	assert.Equal(t, EventStored, events[0].Kind)
}

func TestServiceTransitionsWriteAudit(t *testing.T) {
	svc, auditPath, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.StoreAlert(ctx, models.SecurityAlert{ID: "a1", Severity: models.SeverityCritical, Type: models.TypeAuthentication})
	require.NoError(t, err)

	_, err = svc.Acknowledge(ctx, "a1", "analyst")
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, "a1", models.Resolution{By: "ops", Note: "patched"})
	require.NoError(t, err)

	content, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Security alert acknowledged (critical - authentication)")
	assert.Contains(t, lines[0], `"user":"analyst"`)
	assert.Contains(t, lines[1], "Security alert resolved (critical - authentication): patched")
}

func TestServiceFailedTransitionWritesNoAudit(t *testing.T) {
	svc, auditPath, _ := newTestService(t)
	_, err := svc.Acknowledge(context.Background(), "missing", "ops")
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(auditPath)
	if statErr == nil {
		content, _ := os.ReadFile(auditPath)
		assert.Empty(t, strings.TrimSpace(string(content)))
	}
}
