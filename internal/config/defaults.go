package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8090,
			AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeoutSec:     15,
			WriteTimeoutSec:    60,
			ShutdownTimeoutSec: 15,
			MaxBodyBytes:       1 << 20,
		},
		Store: StoreConfig{
			Backend:    "memory",
			SQLitePath: "data/sentinel.db",
			Capacity:   100,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "json",
			Dir:          "logs",
			SecurityFile: "security.log",
			AuditFile:    "audit.log",
			ErrorFile:    "error.log",
			MaxSizeMB:    100,
			MaxBackups:   10,
			MaxAgeDays:   30,
			Compress:     true,
		},
		Security: SecurityConfig{
			RateLimitPerMinute: 120,
			RateLimitBurst:     60,
			RateLimitClients:   10000,
			HoneypotPaths: []string{
				"/wp-admin",
				"/wp-login.php",
				"/.env",
				"/phpmyadmin",
				"/admin/config.php",
				"/api/v1/admin/debug",
			},
			BlockThreats:     true,
			SecureHeaders:    true,
			EnableTestData:   true,
			ScanTimeoutSec:   30,
			BlockDurationMin: 60,
		},
		Tracing: TracingConfig{
			SamplingRate: 0.1,
			ServiceName:  "sentinel",
		},
	}
}
