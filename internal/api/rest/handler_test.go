package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shatzii/sentinel/internal/alert"
	"github.com/shatzii/sentinel/internal/auth"
	"github.com/shatzii/sentinel/internal/logs"
	"github.com/shatzii/sentinel/internal/metrics"
	"github.com/shatzii/sentinel/internal/models"
)

type staticModules []models.ModuleView

func (s staticModules) Views() []models.ModuleView { return s }

type fakeScans struct {
	scanErr   error
	initiator string
	report    models.RemediationReport
}

func (f *fakeScans) RunScan(_ context.Context, initiator string) (models.ScanResult, error) {
	f.initiator = initiator
	if f.scanErr != nil {
		return models.ScanResult{}, f.scanErr
	}
	return models.ScanResult{ScanID: "scan-1", Initiator: initiator}, nil
}

func (f *fakeScans) RemediateAll(_ context.Context, initiator string) (models.RemediationReport, error) {
	f.initiator = initiator
	return f.report, nil
}

type testEnv struct {
	router  *mux.Router
	service *alert.Service
	scans   *fakeScans
	handler *Handler
	dir     string
}

func newTestEnv(t *testing.T, mods ...models.ModuleView) *testEnv {
	t.Helper()
	dir := t.TempDir()
	svc := alert.NewService(alert.NewMemoryStore(alert.DefaultCapacity), nil, nil, nil)
	scans := &fakeScans{}
	reader := logs.NewReader(filepath.Join(dir, "security.log"), filepath.Join(dir, "audit.log"), filepath.Join(dir, "error.log"))
	h := NewHandler(svc, staticModules(mods), scans, reader, nil, nil)
	h.EnableTestData = true

	router := mux.NewRouter()
	SetupRoutes(router.PathPrefix("/api/security").Subrouter(), h)
	return &testEnv{router: router, service: svc, scans: scans, handler: h, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAlertLifecycleAndMetrics(t *testing.T) {
	env := newTestEnv(t, models.ModuleView{ID: "auth-security", Name: "Authentication Security", Status: models.ModuleActive})
	_, err := env.service.StoreAlert(context.Background(), models.SecurityAlert{
		ID: "a1", Severity: models.SeverityCritical, Type: models.TypeAuthentication, Status: models.StatusActive,
	})
	require.NoError(t, err)

	m := decode[metrics.SecurityMetrics](t, env.do(t, http.MethodGet, "/api/security/metrics", ""))
	assert.Equal(t, 1, m.AlertsByType.Authentication)
	assert.Equal(t, 1, m.AlertsBySeverity.Critical)
	assert.Equal(t, 1, m.Incidents.Open)
	assert.GreaterOrEqual(t, m.ThreatLevel, 15)

	rec := env.do(t, http.MethodPost, "/api/security/alerts/a1/resolve", `{"user":"ops","resolution":"patched"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[alertResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Alert resolved successfully", resp.Message)
	assert.Equal(t, models.StatusResolved, resp.Alert.Status)
	assert.Equal(t, "ops", resp.Alert.ResolvedBy)
	assert.Equal(t, "patched", resp.Alert.DetailString("resolution"))

	m = decode[metrics.SecurityMetrics](t, env.do(t, http.MethodGet, "/api/security/metrics", ""))
	assert.Equal(t, 0, m.Incidents.Open)
	assert.Equal(t, 1, m.Incidents.Resolved)
	assert.Equal(t, 0, m.ThreatLevel)
}

func TestAcknowledge(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.StoreAlert(context.Background(), models.SecurityAlert{ID: "a1", Severity: models.SeverityLow, Type: models.TypeSystem})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/security/alerts/a1/acknowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[alertResponse](t, rec)
	assert.Equal(t, models.StatusAcknowledged, resp.Alert.Status)
	assert.Equal(t, "system", resp.Alert.AcknowledgedBy)

	rec = env.do(t, http.MethodPost, "/api/security/alerts/missing/acknowledge", `{"user":"ops"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Alert not found"}`, rec.Body.String())

	env.do(t, http.MethodPost, "/api/security/alerts/a1/resolve", `{"user":"ops"}`)
	rec = env.do(t, http.MethodPost, "/api/security/alerts/a1/acknowledge", `{"user":"ops"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/security/alerts/a1/acknowledge", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActorFromToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/security/scan", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", env.scans.initiator)

	env.do(t, http.MethodPost, "/api/security/scan", `{"user":"bob"}`)
	assert.Equal(t, "bob", env.scans.initiator)
}

func TestScanFailure(t *testing.T) {
	env := newTestEnv(t)
	env.scans.scanErr = errors.New("scan aborted: context deadline exceeded")

	rec := env.do(t, http.MethodPost, "/api/security/scan", `{"user":"ops"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[envelope](t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Failed to run security scan", body.Message)
	assert.Contains(t, body.Error, "deadline")
}

func TestRemediateAllNone(t *testing.T) {
	env := newTestEnv(t)
	env.scans.report = models.RemediationReport{Success: true, Message: "No active security issues to remediate",
		Details: []models.RemediationDetail{}, Failed: []models.RemediationFailure{}}

	rec := env.do(t, http.MethodPost, "/api/security/remediate-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[models.RemediationReport](t, rec)
	assert.True(t, report.Success)
	assert.Equal(t, 0, report.Remediated)
}

func TestGenerateTestData(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/security/generate-test-data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Test security data generated successfully","alertCount":7}`, rec.Body.String())

	alerts := decode[[]models.SecurityAlert](t, env.do(t, http.MethodGet, "/api/security/alerts", ""))
	require.Len(t, alerts, 7)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity, "newest first")
	assert.True(t, strings.HasPrefix(alerts[0].ID, "crit-"))
	assert.True(t, strings.HasPrefix(alerts[6].ID, "auth-"))

	env.handler.EnableTestData = false
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/security/generate-test-data", "").Code)
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t,
		models.ModuleView{ID: "a", Name: "A", Status: models.ModuleActive},
		models.ModuleView{ID: "b", Name: "B", Status: models.ModuleInactive},
	)
	resp := decode[statusResponse](t, env.do(t, http.MethodGet, "/api/security/status", ""))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 1, resp.ActiveModules)
	assert.Equal(t, 2, resp.TotalModules)
	assert.Equal(t, "B", resp.Modules["b"].Name)
}

func TestGetLogs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/security/logs/security", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "audit.log"), []byte("one\n\ntwo\nthree\n"), 0o600))
	rec = env.do(t, http.MethodGet, "/api/security/logs/audit?lines=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"two", "three"}, decode[[]string](t, rec))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/security/logs/kernel", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/security/logs/audit?lines=x", "").Code)

	require.NoError(t, os.Mkdir(filepath.Join(env.dir, "error.log"), 0o700))
	rec = env.do(t, http.MethodGet, "/api/security/logs/error", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to read error logs"}`, rec.Body.String())
}

func TestMetricsIncludesSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.handler.System = func() metrics.SystemStatus { return metrics.SystemStatus{Goroutines: 42, UptimeSeconds: time.Minute.Seconds()} }
	m := decode[metrics.SecurityMetrics](t, env.do(t, http.MethodGet, "/api/security/metrics", ""))
	assert.Equal(t, 42, m.SystemStatus.Goroutines)
	assert.Equal(t, 85, m.SecurityScore)
}
