package middleware

import (
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/registry"
)

// Blocklist reports addresses the ip-blocker module has blocked.
type Blocklist interface {
	IsBlocked(ip string) bool
}

// ThreatCounters routes detections to the module that owns them.
type ThreatCounters struct {
	Injection Counter // db-monitor
	XSS       Counter // content-security
	Threats   Counter // threat-intel
	Blocked   Counter // ip-blocker
}

// ThreatConfig configures ThreatDetector.
type ThreatConfig struct {
	// Block rejects requests carrying a detected payload; otherwise they are only alerted.
	Block     bool
	Blocklist Blocklist
	Alerts    AlertSink
	Counters  ThreatCounters
	Log       *zap.Logger
}

type threatPattern struct {
	name    string
	re      *regexp.Regexp
	typ     models.AlertType
	prefix  string
	message string
	counter func(ThreatCounters) (Counter, string)
}

var threatPatterns = []threatPattern{
	{
		name:    "sql_injection",
		re:      regexp.MustCompile(`(?i)(\bunion\b[\s\S]+\bselect\b|'\s*or\s+'?\d*'?\s*=|\bor\s+\d+\s*=\s*\d+|;\s*(drop|delete|insert|update)\s|\bsleep\s*\(|--\s*$)`),
		typ:     models.TypeSQLInjection,
		prefix:  "sqli",
		message: "SQL injection attempt detected",
		counter: func(c ThreatCounters) (Counter, string) { return c.Injection, registry.CounterInjectionAttempts },
	},
	{
		name:    "xss",
		re:      regexp.MustCompile(`(?i)(<\s*script|javascript:|\bon(error|load|mouseover)\s*=|<\s*iframe)`),
		typ:     models.TypeXSS,
		prefix:  "xss",
		message: "Cross-site scripting attempt detected",
		counter: func(c ThreatCounters) (Counter, string) { return c.XSS, registry.CounterXSSAttempts },
	},
	{
		name:    "path_traversal",
		re:      regexp.MustCompile(`(\.\./|\.\.\\|/etc/passwd)`),
		typ:     models.TypeSuspiciousActivity,
		prefix:  "threat",
		message: "Path traversal attempt detected",
		counter: func(c ThreatCounters) (Counter, string) { return c.Threats, registry.CounterThreatsDetected },
	},
}

// ThreatDetector rejects blocked addresses with 403 and inspects the path and
// query for attack payloads. Each detection raises a high alert.
func ThreatDetector(cfg ThreatConfig) func(http.Handler) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if cfg.Blocklist != nil && cfg.Blocklist.IsBlocked(ip) {
				add(cfg.Counters.Blocked, registry.CounterBlockedRequests)
				metrics.MiddlewareBlocksTotal.WithLabelValues("blocked_ip").Inc()
				writeError(w, http.StatusForbidden, "Access denied")
				return
			}

			p, ok := detect(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			c, name := p.counter(cfg.Counters)
			add(c, name)
			raise(r, cfg.Alerts, cfg.Log, requestAlert(r, p.prefix, p.typ, models.SeverityHigh, p.message,
				map[string]any{
					"endpoint": r.URL.Path,
					"method":   r.Method,
					"pattern":  p.name,
					"blocked":  cfg.Block,
				}))
			if cfg.Block {
				metrics.MiddlewareBlocksTotal.WithLabelValues(p.name).Inc()
				writeError(w, http.StatusForbidden, "Request blocked")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func detect(r *http.Request) (threatPattern, bool) {
	inputs := []string{r.URL.Path, r.URL.RawQuery}
	if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil {
		inputs = append(inputs, q)
	}
	for _, p := range threatPatterns {
		for _, in := range inputs {
			if in != "" && p.re.MatchString(in) {
				return p, true
			}
		}
	}
	return threatPattern{}, false
}
