package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
)

// Module ids of the built-in catalog.
const (
	ModuleAuthSecurity         = "auth-security"
	ModuleRateLimiter          = "rate-limiter"
	ModuleFileGuard            = "file-guard"
	ModuleContentSecurity      = "content-security"
	ModuleHoneypot             = "honeypot"
	ModuleThreatIntel          = "threat-intel"
	ModuleDBMonitor            = "db-monitor"
	ModuleVulnerabilityScanner = "vulnerability-scanner"
	ModuleIPBlocker            = "ip-blocker"
	ModuleSecureSession        = "secure-session"
	ModuleSecurityScoring      = "security-scoring"
)

// Counter names shared with the middleware that feeds them.
const (
	CounterFailedAuth        = "failedAuth"
	CounterPasswordResets    = "passwordResets"
	CounterLimitedRequests   = "limitedRequests"
	CounterOversizedBodies   = "oversizedBodies"
	CounterXSSAttempts       = "xssAttempts"
	CounterHoneypotHits      = "hits"
	CounterThreatsDetected   = "threatsDetected"
	CounterInjectionAttempts = "injectionAttempts"
	CounterScansRun          = "scansRun"
	CounterBlockedRequests   = "blockedRequests"
	CounterInvalidTokens     = "invalidTokens"
)

const (
	maxSafeBodyBytes     = 10 << 20
	maxSafeRatePerMinute = 600
	failedAuthWarnLevel  = 10
	blocklistCapacity    = 4096
	watchlistCapacity    = 4096
	watchDuration        = 24 * time.Hour
)

// Options describes the live configuration the catalog checks inspect.
type Options struct {
	AuthEnabled        bool
	TLSEnabled         bool
	SecureHeaders      bool
	BlockThreats       bool
	PersistentStore    bool
	MaxBodyBytes       int64
	RateLimitPerMinute int
	HoneypotPaths      int
	BlockDuration      time.Duration
	DisabledModules    []string
}

// Catalog is the built-in module set with typed handles for the middleware.
type Catalog struct {
	*Registry

	Auth        *AuthSecurity
	RateLimiter *RateLimiter
	IPBlocker   *IPBlocker

	FileGuard       *Base
	ContentSecurity *Base
	Honeypot        *Base
	ThreatIntel     *Base
	DBMonitor       *Base
	Scanner         *Base
	SecureSession   *Base
	Scoring         *Base
}

// NewCatalog builds the eleven built-in modules.
func NewCatalog(opts Options, log *zap.Logger) *Catalog {
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = time.Hour
	}
	c := &Catalog{
		Auth:        newAuthSecurity(opts),
		RateLimiter: newRateLimiter(opts),
		IPBlocker:   newIPBlocker(opts),

		FileGuard: NewBase(ModuleFileGuard, "File Guard",
			"Limits request body size and rejects oversized uploads", CounterOversizedBodies),
		ContentSecurity: NewBase(ModuleContentSecurity, "Content Security",
			"Sets security response headers and detects cross-site scripting payloads", CounterXSSAttempts),
		Honeypot: NewBase(ModuleHoneypot, "Honeypot",
			"Serves decoy endpoints that only scanners and attackers visit", CounterHoneypotHits),
		ThreatIntel: NewBase(ModuleThreatIntel, "Threat Intelligence",
			"Matches requests against known attack patterns", CounterThreatsDetected),
		DBMonitor: NewBase(ModuleDBMonitor, "Database Monitor",
			"Detects SQL injection attempts in request parameters", CounterInjectionAttempts),
		Scanner: NewBase(ModuleVulnerabilityScanner, "Vulnerability Scanner",
			"Runs configuration checks across all modules", CounterScansRun),
		SecureSession: NewBase(ModuleSecureSession, "Secure Session",
			"Validates bearer tokens and transport security", CounterInvalidTokens),
		Scoring: NewBase(ModuleSecurityScoring, "Security Scoring",
			"Computes the security score and threat level"),
	}

	c.FileGuard.AddCheck(func(context.Context) []models.Vulnerability {
		if opts.MaxBodyBytes > maxSafeBodyBytes {
			return []models.Vulnerability{{
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("Request bodies up to %d bytes are accepted", opts.MaxBodyBytes),
				Remediation: "Lower server.max_body_bytes to 10 MiB or less",
			}}
		}
		return nil
	})
	c.ContentSecurity.AddCheck(func(context.Context) []models.Vulnerability {
		if !opts.SecureHeaders {
			return []models.Vulnerability{{
				Severity:    models.SeverityHigh,
				Description: "Security response headers are disabled",
				Remediation: "Set security.secure_headers to true",
			}}
		}
		return nil
	})
	c.Honeypot.AddCheck(func(context.Context) []models.Vulnerability {
		if opts.HoneypotPaths == 0 {
			return []models.Vulnerability{{
				Severity:    models.SeverityLow,
				Description: "No honeypot routes are configured",
				Remediation: "Add decoy paths to security.honeypot_paths",
			}}
		}
		if hits := c.Honeypot.Count(CounterHoneypotHits); hits > 0 {
			return []models.Vulnerability{{
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("Honeypot routes were accessed %d times", hits),
				Remediation: "Review the honeypot alerts and block the source addresses",
			}}
		}
		return nil
	})
	c.ThreatIntel.AddCheck(func(context.Context) []models.Vulnerability {
		if !opts.BlockThreats {
			return []models.Vulnerability{{
				Severity:    models.SeverityMedium,
				Description: "Detected attack payloads are logged but not blocked",
				Remediation: "Set security.block_threats to true",
			}}
		}
		return nil
	})
	c.DBMonitor.AddCheck(func(context.Context) []models.Vulnerability {
		if n := c.DBMonitor.Count(CounterInjectionAttempts); n > 0 {
			return []models.Vulnerability{{
				Severity:    models.SeverityHigh,
				Description: fmt.Sprintf("%d SQL injection attempts were detected", n),
				Remediation: "Block the source addresses and confirm affected queries are parameterized",
			}}
		}
		return nil
	})
	c.SecureSession.AddCheck(func(context.Context) []models.Vulnerability {
		if !opts.TLSEnabled {
			return []models.Vulnerability{{
				Severity:    models.SeverityHigh,
				Description: "Server is not serving TLS",
				Remediation: "Set server.tls_enabled with a certificate and key",
			}}
		}
		return nil
	})
	c.Scoring.AddCheck(func(context.Context) []models.Vulnerability {
		if !opts.PersistentStore {
			return []models.Vulnerability{{
				Severity:    models.SeverityLow,
				Description: "Alerts are held in memory and lost on restart",
				Remediation: "Set store.backend to sqlite",
			}}
		}
		return nil
	})

	modules := []Module{
		c.Auth, c.RateLimiter, c.FileGuard, c.ContentSecurity, c.Honeypot, c.ThreatIntel,
		c.DBMonitor, c.Scanner, c.IPBlocker, c.SecureSession, c.Scoring,
	}
	for _, id := range opts.DisabledModules {
		for _, m := range modules {
			if m.ID() == id {
				if s, ok := m.(interface {
					SetStatus(models.ModuleStatus, string)
				}); ok {
					s.SetStatus(models.ModuleInactive, "disabled by configuration")
				}
			}
		}
	}
	c.Registry = New(log, modules...)
	return c
}

// Enabled reports whether the module with id is active.
func (c *Catalog) Enabled(id string) bool {
	m, ok := c.Module(id)
	return ok && m.Status() == models.ModuleActive
}

// ─── Auth security ───────────────────────────────────────────────────────────

// AuthSecurity tracks failed logins and accounts that must reset their password.
type AuthSecurity struct {
	*Base

	mu            sync.Mutex
	resetRequired map[string]time.Time
}

func newAuthSecurity(opts Options) *AuthSecurity {
	a := &AuthSecurity{
		Base: NewBase(ModuleAuthSecurity, "Authentication Security",
			"Guards admin routes and tracks failed authentication", CounterFailedAuth, CounterPasswordResets),
		resetRequired: make(map[string]time.Time),
	}
	a.AddCheck(func(context.Context) []models.Vulnerability {
		var out []models.Vulnerability
		if !opts.AuthEnabled {
			out = append(out, models.Vulnerability{
				Severity:    models.SeverityHigh,
				Description: "Admin API accepts unauthenticated requests",
				Remediation: "Set security.jwt_secret to require bearer tokens",
			})
		}
		if n := a.Count(CounterFailedAuth); n >= failedAuthWarnLevel {
			out = append(out, models.Vulnerability{
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("%d failed authentication attempts were recorded", n),
				Remediation: "Review authentication alerts for credential stuffing",
			})
		}
		return out
	})
	a.Handle(models.ActionForcePasswordReset, func(_ context.Context, req models.RemediationRequest) (models.RemediationResult, error) {
		user := req.Alert.User
		if user == "" || user == "unknown" {
			return models.RemediationResult{}, fmt.Errorf("%w: alert %s names no account to reset", ErrNotApplicable, req.Alert.ID)
		}
		a.mu.Lock()
		a.resetRequired[user] = time.Now().UTC()
		a.mu.Unlock()
		a.Add(CounterPasswordResets, 1)
		return models.RemediationResult{
			Success: true,
			Message: fmt.Sprintf("Password reset required for %s", user),
		}, nil
	})
	a.SetExtraMetrics(func() map[string]any {
		return map[string]any{"resetRequired": a.ResetRequired()}
	})
	return a
}

// ResetRequired lists accounts flagged for a password reset.
func (a *AuthSecurity) ResetRequired() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := make(map[string]struct{}, len(a.resetRequired))
	for u := range a.resetRequired {
		set[u] = struct{}{}
	}
	return sortedKeys(set)
}

// MustReset reports whether user was flagged by remediation.
func (a *AuthSecurity) MustReset(user string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.resetRequired[user]
	return ok
}

// ─── Rate limiter ────────────────────────────────────────────────────────────

// RateLimiter counts limited requests and keeps a watchlist of clients under
// increased monitoring.
type RateLimiter struct {
	*Base
	watched *expirable.LRU[string, time.Time]
}

func newRateLimiter(opts Options) *RateLimiter {
	r := &RateLimiter{
		Base: NewBase(ModuleRateLimiter, "Rate Limiter",
			"Applies per-client token bucket limits", CounterLimitedRequests),
		watched: expirable.NewLRU[string, time.Time](watchlistCapacity, nil, watchDuration),
	}
	r.AddCheck(func(context.Context) []models.Vulnerability {
		if opts.RateLimitPerMinute > maxSafeRatePerMinute {
			return []models.Vulnerability{{
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("Rate limit allows %d requests per minute per client", opts.RateLimitPerMinute),
				Remediation: fmt.Sprintf("Lower security.rate_limit_per_minute to %d or less", maxSafeRatePerMinute),
			}}
		}
		return nil
	})
	r.Handle(models.ActionIncreaseMonitoring, func(_ context.Context, req models.RemediationRequest) (models.RemediationResult, error) {
		ip := req.Alert.IP
		if ip == "" {
			return models.RemediationResult{}, fmt.Errorf("%w: alert %s has no source address", ErrNotApplicable, req.Alert.ID)
		}
		r.watched.Add(ip, time.Now().UTC())
		return models.RemediationResult{
			Success: true,
			Message: fmt.Sprintf("Increased monitoring for %s", ip),
		}, nil
	})
	r.SetExtraMetrics(func() map[string]any {
		return map[string]any{"watchedClients": r.watched.Len()}
	})
	return r
}

// Watched reports whether ip is under increased monitoring.
func (r *RateLimiter) Watched(ip string) bool {
	return r.watched.Contains(ip)
}

// ─── IP blocker ──────────────────────────────────────────────────────────────

// IPBlocker holds an expiring blocklist enforced by the threat middleware.
type IPBlocker struct {
	*Base
	blocked *expirable.LRU[string, string]
}

func newIPBlocker(opts Options) *IPBlocker {
	b := &IPBlocker{
		Base: NewBase(ModuleIPBlocker, "IP Blocker",
			"Rejects requests from blocked addresses", CounterBlockedRequests),
		blocked: expirable.NewLRU[string, string](blocklistCapacity, nil, opts.BlockDuration),
	}
	b.Handle(models.ActionBlockIP, func(_ context.Context, req models.RemediationRequest) (models.RemediationResult, error) {
		ip := req.Alert.IP
		if ip == "" {
			return models.RemediationResult{}, fmt.Errorf("%w: alert %s has no source address", ErrNotApplicable, req.Alert.ID)
		}
		b.Block(ip, req.Alert.Message)
		return models.RemediationResult{
			Success: true,
			Message: fmt.Sprintf("Blocked %s for %s", ip, opts.BlockDuration),
		}, nil
	})
	b.SetExtraMetrics(func() map[string]any {
		return map[string]any{"blockedAddresses": b.blocked.Len()}
	})
	return b
}

// Block adds ip to the blocklist.
func (b *IPBlocker) Block(ip, reason string) {
	b.blocked.Add(ip, reason)
}

// Unblock removes ip from the blocklist.
func (b *IPBlocker) Unblock(ip string) bool {
	return b.blocked.Remove(ip)
}

// IsBlocked reports whether ip is currently blocked. An inactive blocker blocks nothing.
func (b *IPBlocker) IsBlocked(ip string) bool {
	if b.Status() != models.ModuleActive {
		return false
	}
	return b.blocked.Contains(ip)
}
