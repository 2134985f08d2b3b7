package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shatzii/sentinel/internal/auth"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/logger"
)

type fakeSink struct {
	mu     sync.Mutex
	alerts []models.SecurityAlert
}

func (f *fakeSink) StoreAlert(_ context.Context, a models.SecurityAlert) (models.SecurityAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeSink) all() []models.SecurityAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SecurityAlert(nil), f.alerts...)
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeCounter() *fakeCounter { return &fakeCounter{counts: map[string]int64{}} }

func (f *fakeCounter) Add(name string, delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name] += delta
}

func (f *fakeCounter) get(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(ResponseRequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ResponseRequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestStructuredLogUsesStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := mux.NewRouter()
	r.Use(StructuredLog(zap.New(core)))
	r.HandleFunc("/api/security/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/security/alerts/x", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.EqualValues(t, 404, entry.ContextMap()["status"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(true)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	SecureHeaders(false)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestMaxBodySize(t *testing.T) {
	c := newFakeCounter()
	h := MaxBodySize(8, c)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.EqualValues(t, 1, c.get("oversizedBodies"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsAndAlertsOnce(t *testing.T) {
	sink := &fakeSink{}
	c := newFakeCounter()
	h := RateLimit(RateLimitConfig{PerMinute: 60, Burst: 2, Alerts: sink, Counter: c})(okHandler)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/security/alerts", nil)
		req.RemoteAddr = "192.168.1.2:12345"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "Too many requests")
		}
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)
	assert.EqualValues(t, 3, c.get("limitedRequests"))

	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.TypeRateLimit, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "192.168.1.2", alerts[0].IP)
	assert.Equal(t, "/api/security/alerts", alerts[0].DetailString("endpoint"))
	assert.True(t, strings.HasPrefix(alerts[0].ID, "rate-"))

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/security/alerts", nil)
	req.RemoteAddr = "192.168.1.3:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitHealthBypass(t *testing.T) {
	h := RateLimit(RateLimitConfig{PerMinute: 1, Burst: 1})(okHandler)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

type watchSet map[string]bool

func (w watchSet) Watched(ip string) bool { return w[ip] }

func TestRateLimitHalvesWatchedClients(t *testing.T) {
	h := RateLimit(RateLimitConfig{PerMinute: 60, Burst: 4, Watchlist: watchSet{"10.0.0.9": true}})(okHandler)
	allowed := 0
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.9:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
			assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestHoneypot(t *testing.T) {
	sink := &fakeSink{}
	c := newFakeCounter()
	h := Honeypot([]string{"/wp-admin", "/.env"}, sink, c, nil)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/WP-Admin/", nil)
	req.Header.Set("User-Agent", "zgrab/0.x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, 1, c.get("hits"))
	alerts := sink.all()
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, models.TypeHoneypot, a.Type)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, "unknown", a.User)
	assert.Equal(t, "zgrab/0.x", a.UserAgent)
	assert.Equal(t, "/WP-Admin/", a.DetailString("endpoint"))
	assert.Equal(t, "GET", a.DetailString("method"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/security/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sink.all(), 1)
}

type blockSet map[string]bool

func (b blockSet) IsBlocked(ip string) bool { return b[ip] }

func TestThreatDetector(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		typ     models.AlertType
		counter string
	}{
		{"sql injection", "/api/items?id=1%27%20OR%20%271%27%3D%271", models.TypeSQLInjection, "injectionAttempts"},
		{"union select", "/api/items?q=1+UNION+SELECT+password+FROM+users", models.TypeSQLInjection, "injectionAttempts"},
		{"xss", "/search?q=%3Cscript%3Ealert(1)%3C/script%3E", models.TypeXSS, "xssAttempts"},
		{"traversal", "/files?name=../../etc/passwd", models.TypeSuspiciousActivity, "threatsDetected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			c := newFakeCounter()
			h := ThreatDetector(ThreatConfig{
				Block:    true,
				Alerts:   sink,
				Counters: ThreatCounters{Injection: c, XSS: c, Threats: c, Blocked: c},
			})(okHandler)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.EqualValues(t, 1, c.get(tt.counter))
			alerts := sink.all()
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.typ, alerts[0].Type)
			assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
		})
	}
}

func TestThreatDetectorMonitorOnlyAndBlocklist(t *testing.T) {
	sink := &fakeSink{}
	c := newFakeCounter()
	h := ThreatDetector(ThreatConfig{
		Blocklist: blockSet{"6.6.6.6": true},
		Alerts:    sink,
		Counters:  ThreatCounters{Injection: c, XSS: c, Threats: c, Blocked: c},
	})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=javascript:alert(1)", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.all(), 1)
	assert.Equal(t, false, sink.all()[0].Details["blocked"])

	req := httptest.NewRequest(http.MethodGet, "/api/security/status", nil)
	req.RemoteAddr = "6.6.6.6:40000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.EqualValues(t, 1, c.get("blockedRequests"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/security/alerts?limit=10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type resetSet map[string]bool

func (r resetSet) MustReset(user string) bool { return r[user] }

func TestAuthGuard(t *testing.T) {
	const secret = "test-secret"
	sink := &fakeSink{}
	authC, sessC := newFakeCounter(), newFakeCounter()
	var subject string
	h := AuthGuard(AuthConfig{
		Secret:  secret,
		Resets:  resetSet{"flagged": true},
		Alerts:  sink,
		Auth:    authC,
		Session: sessC,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = auth.Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/security/scan", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "").Code, "reads are open")

	rec := do(http.MethodPost, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.EqualValues(t, 1, authC.get("failedAuth"))
	assert.EqualValues(t, 0, sessC.get("invalidTokens"))

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "garbage").Code)
	assert.EqualValues(t, 1, sessC.get("invalidTokens"))

	alerts := sink.all()
	require.Len(t, alerts, 2)
	assert.Equal(t, models.TypeAuthentication, alerts[0].Type)
	assert.Equal(t, "missing bearer token", alerts[0].DetailString("reason"))
	assert.Equal(t, "invalid bearer token", alerts[1].DetailString("reason"))

	tok, err := auth.IssueToken(secret, "ops", "admin", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, tok).Code)
	assert.Equal(t, "ops", subject)

	flagged, err := auth.IssueToken(secret, "flagged", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, flagged).Code)
}

func TestAuthGuardDisabledWithoutSecret(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthGuard(AuthConfig{})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/security/scan", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "::1", ClientIP(req), "headers are ignored without ProxyHeaders")
}

func clientIPThrough(t *testing.T, trusted []string, remote string, headers map[string]string) string {
	t.Helper()
	prefixes, err := ParseTrustedProxies(trusted)
	require.NoError(t, err)
	var got string
	h := ProxyHeaders(prefixes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestProxyHeaders(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer ignores xff", nil, "198.51.100.4:5000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "198.51.100.4"},
		{"untrusted peer ignores x-real-ip", []string{"10.0.0.0/8"}, "198.51.100.4:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "198.51.100.4"},
		{"trusted proxy", []string{"10.0.0.1"}, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "1.2.3.4"},
		{"spoofed leftmost hop", []string{"10.0.0.0/8"}, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.0.0.2"}, "1.2.3.4"},
		{"x-real-ip from trusted proxy", []string{"10.0.0.1"}, "10.0.0.1:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"garbage header", []string{"10.0.0.1"}, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clientIPThrough(t, tt.trusted, tt.remote, tt.headers))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestRotatedForwardedForStaysBlocked(t *testing.T) {
	c := newFakeCounter()
	h := ProxyHeaders(nil)(ThreatDetector(ThreatConfig{
		Block:     true,
		Blocklist: blockSet{"203.0.113.50": true},
		Counters:  ThreatCounters{Blocked: c},
	})(okHandler))

	for _, spoof := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/security/status", nil)
		req.RemoteAddr = "203.0.113.50:41000"
		req.Header.Set("X-Forwarded-For", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, spoof)
	}
	assert.EqualValues(t, 3, c.get("blockedRequests"))
}
