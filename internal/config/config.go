// Package config loads Sentinel configuration.
//
// Sources, highest priority first:
//  1. Environment variables (SENTINEL_* prefix, "." replaced by "_")
//  2. YAML config file (optional)
//  3. Built-in defaults
//
// Sections: server, store, logging, security, tracing.
package config

import (
	"context"
	"path/filepath"
	"time"
)

// ConfigManager loads, validates and watches configuration.
type ConfigManager interface {
	Load(ctx context.Context) error
	Get(ctx context.Context) *Config
	Validate(ctx context.Context) error
	// Watch delivers a fresh Config after every change to the config file.
	Watch(ctx context.Context) <-chan Config
	Reload(ctx context.Context) error
}

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Logging  LoggingConfig
	Security SecurityConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	ReadTimeoutSec     int
	WriteTimeoutSec    int
	ShutdownTimeoutSec int
	TLSEnabled         bool
	TLSCertPath        string
	TLSKeyPath         string
	MaxBodyBytes       int64
	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means none.
	TrustedProxies []string
}

type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend    string
	SQLitePath string
	Capacity   int
}

type LoggingConfig struct {
	Level        string
	Format       string
	Dir          string
	SecurityFile string
	AuditFile    string
	ErrorFile    string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Compress     bool
}

func (l LoggingConfig) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.Dir, name)
}

func (l LoggingConfig) SecurityPath() string { return l.path(l.SecurityFile) }
func (l LoggingConfig) AuditPath() string    { return l.path(l.AuditFile) }
func (l LoggingConfig) ErrorPath() string    { return l.path(l.ErrorFile) }

type SecurityConfig struct {
	// JWTSecret enables bearer-token auth on mutating routes when set.
	JWTSecret          string
	RateLimitPerMinute int
	RateLimitBurst     int
	RateLimitClients   int
	HoneypotPaths      []string
	BlockThreats       bool
	SecureHeaders      bool
	EnableTestData     bool
	ScanTimeoutSec     int
	BlockDurationMin   int
	DisabledModules    []string
}

func (s SecurityConfig) ScanTimeout() time.Duration {
	return time.Duration(s.ScanTimeoutSec) * time.Second
}

func (s SecurityConfig) BlockDuration() time.Duration {
	return time.Duration(s.BlockDurationMin) * time.Minute
}

type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector address; empty disables tracing.
	Endpoint     string
	SamplingRate float64
	ServiceName  string
}

// NewConfigManager creates a manager reading the YAML file at configPath.
// An empty or missing file is allowed.
func NewConfigManager(configPath string) (ConfigManager, error) {
	return &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}, nil
}
