package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Port 0 asks the kernel for a free port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port", "port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			add("server.tls_cert_path", "tls_cert_path is required when tls_enabled is true")
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			add("server.tls_cert_path", "certificate file does not exist: %s", c.Server.TLSCertPath)
		}
		if c.Server.TLSKeyPath == "" {
			add("server.tls_key_path", "tls_key_path is required when tls_enabled is true")
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			add("server.tls_key_path", "key file does not exist: %s", c.Server.TLSKeyPath)
		}
	}
	for _, p := range c.Server.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			add("server.trusted_proxies", "%q is not an IP address or CIDR", p)
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be positive, got %d", c.Server.MaxBodyBytes)
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path", "sqlite_path is required when backend is sqlite")
		}
	default:
		add("store.backend", "must be one of memory, sqlite; got %q", c.Store.Backend)
	}
	if c.Store.Capacity < 1 {
		add("store.capacity", "must be at least 1, got %d", c.Store.Capacity)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		add("logging.format", "must be json or console, got %q", c.Logging.Format)
	}

	if c.Security.RateLimitPerMinute < 1 {
		add("security.rate_limit_per_minute", "must be at least 1, got %d", c.Security.RateLimitPerMinute)
	}
	if c.Security.RateLimitBurst < 1 {
		add("security.rate_limit_burst", "must be at least 1, got %d", c.Security.RateLimitBurst)
	}
	if c.Security.RateLimitClients < 1 {
		add("security.rate_limit_clients", "must be at least 1, got %d", c.Security.RateLimitClients)
	}
	if c.Security.ScanTimeoutSec < 1 {
		add("security.scan_timeout_sec", "must be at least 1, got %d", c.Security.ScanTimeoutSec)
	}
	if c.Security.BlockDurationMin < 1 {
		add("security.block_duration_min", "must be at least 1, got %d", c.Security.BlockDurationMin)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate", "must be between 0 and 1, got %v", c.Tracing.SamplingRate)
	}
	return errs
}
