package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	viper      *viper.Viper
	watchChan  chan Config
	watchOnce  sync.Once

	mu     sync.RWMutex
	config *Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigType("yaml")
	m.viper.SetEnvPrefix("SENTINEL")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.setDefaults()

	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// readFile reads the config file when one is configured. A missing file is not an error.
func (m *viperConfigManager) readFile() error {
	if m.configPath == "" {
		return nil
	}
	m.viper.SetConfigFile(m.configPath)
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and delivers reloaded configs. Without a
// readable config file the channel never fires.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	if m.viper == nil || m.viper.ConfigFileUsed() == "" {
		return m.watchChan
	}
	if _, err := os.Stat(m.viper.ConfigFileUsed()); err != nil {
		return m.watchChan
	}
	m.watchOnce.Do(func() {
		m.viper.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			if err := m.unmarshalConfig(); err != nil {
				return
			}
			select {
			case m.watchChan <- *m.Get(ctx):
			default:
				// Channel full, skip this update
			}
		})
		m.viper.WatchConfig()
	})
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.viper == nil {
		return m.Load(ctx)
	}
	if err := m.readFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", d.Server.Host)
	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	m.viper.SetDefault("server.read_timeout_sec", d.Server.ReadTimeoutSec)
	m.viper.SetDefault("server.write_timeout_sec", d.Server.WriteTimeoutSec)
	m.viper.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
	m.viper.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", d.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", d.Server.TLSKeyPath)
	m.viper.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	m.viper.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)

	// Store defaults
	m.viper.SetDefault("store.backend", d.Store.Backend)
	m.viper.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	m.viper.SetDefault("store.capacity", d.Store.Capacity)

	// Logging defaults
	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.dir", d.Logging.Dir)
	m.viper.SetDefault("logging.security_file", d.Logging.SecurityFile)
	m.viper.SetDefault("logging.audit_file", d.Logging.AuditFile)
	m.viper.SetDefault("logging.error_file", d.Logging.ErrorFile)
	m.viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", d.Logging.Compress)

	// Security defaults
	m.viper.SetDefault("security.jwt_secret", d.Security.JWTSecret)
	m.viper.SetDefault("security.rate_limit_per_minute", d.Security.RateLimitPerMinute)
	m.viper.SetDefault("security.rate_limit_burst", d.Security.RateLimitBurst)
	m.viper.SetDefault("security.rate_limit_clients", d.Security.RateLimitClients)
	m.viper.SetDefault("security.honeypot_paths", d.Security.HoneypotPaths)
	m.viper.SetDefault("security.block_threats", d.Security.BlockThreats)
	m.viper.SetDefault("security.secure_headers", d.Security.SecureHeaders)
	m.viper.SetDefault("security.enable_test_data", d.Security.EnableTestData)
	m.viper.SetDefault("security.scan_timeout_sec", d.Security.ScanTimeoutSec)
	m.viper.SetDefault("security.block_duration_min", d.Security.BlockDurationMin)
	m.viper.SetDefault("security.disabled_modules", d.Security.DisabledModules)

	// Tracing defaults
	m.viper.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	m.viper.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	m.viper.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}
	v := m.viper

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	cfg.Server.ReadTimeoutSec = v.GetInt("server.read_timeout_sec")
	cfg.Server.WriteTimeoutSec = v.GetInt("server.write_timeout_sec")
	cfg.Server.ShutdownTimeoutSec = v.GetInt("server.shutdown_timeout_sec")
	cfg.Server.TLSEnabled = v.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = v.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = v.GetString("server.tls_key_path")
	cfg.Server.MaxBodyBytes = v.GetInt64("server.max_body_bytes")
	cfg.Server.TrustedProxies = v.GetStringSlice("server.trusted_proxies")

	cfg.Store.Backend = v.GetString("store.backend")
	cfg.Store.SQLitePath = v.GetString("store.sqlite_path")
	cfg.Store.Capacity = v.GetInt("store.capacity")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.Dir = v.GetString("logging.dir")
	cfg.Logging.SecurityFile = v.GetString("logging.security_file")
	cfg.Logging.AuditFile = v.GetString("logging.audit_file")
	cfg.Logging.ErrorFile = v.GetString("logging.error_file")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	cfg.Security.JWTSecret = v.GetString("security.jwt_secret")
	cfg.Security.RateLimitPerMinute = v.GetInt("security.rate_limit_per_minute")
	cfg.Security.RateLimitBurst = v.GetInt("security.rate_limit_burst")
	cfg.Security.RateLimitClients = v.GetInt("security.rate_limit_clients")
	cfg.Security.HoneypotPaths = v.GetStringSlice("security.honeypot_paths")
	cfg.Security.BlockThreats = v.GetBool("security.block_threats")
	cfg.Security.SecureHeaders = v.GetBool("security.secure_headers")
	cfg.Security.EnableTestData = v.GetBool("security.enable_test_data")
	cfg.Security.ScanTimeoutSec = v.GetInt("security.scan_timeout_sec")
	cfg.Security.BlockDurationMin = v.GetInt("security.block_duration_min")
	cfg.Security.DisabledModules = v.GetStringSlice("security.disabled_modules")

	cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")
	cfg.Tracing.SamplingRate = v.GetFloat64("tracing.sampling_rate")
	cfg.Tracing.ServiceName = v.GetString("tracing.service_name")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}
