package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Store.Capacity)
	assert.Equal(t, filepath.Join("logs", "security.log"), cfg.Logging.SecurityPath())
	assert.Equal(t, 30*time.Second, cfg.Security.ScanTimeout())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Contains(t, cfg.Security.HoneypotPaths, "/.env")
	assert.NoError(t, mgr.Validate(context.Background()))
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	yaml := `
server:
  port: 9443
  trusted_proxies: [10.0.0.0/8]
store:
  backend: sqlite
  sqlite_path: /tmp/sentinel-test.db
logging:
  dir: /var/log/sentinel
security:
  disabled_modules: [threat-intel]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("SENTINEL_SECURITY_JWT_SECRET", "s3cret")
	t.Setenv("SENTINEL_LOGGING_LEVEL", "debug")

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/log/sentinel/audit.log", cfg.Logging.AuditPath())
	assert.Equal(t, []string{"threat-intel"}, cfg.Security.DisabledModules)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)
	assert.Error(t, mgr.Load(context.Background()))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	cfg.Store.Backend = "redis"
	cfg.Logging.Level = "chatty"
	cfg.Tracing.SamplingRate = 2

	errs := cfg.Validate()
	fields := map[string]bool{}
	for _, err := range errs {
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		fields[ve.Field] = true
	}
	assert.True(t, fields["server.port"])
	assert.True(t, fields["store.backend"])
	assert.True(t, fields["logging.level"])
	assert.True(t, fields["tracing.sampling_rate"])
}

func TestValidateTrustedProxies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1", "::1"}
	assert.Empty(t, cfg.Validate())

	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "lb.internal"}
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "server.trusted_proxies")
}

func TestValidateTLSRequiresFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.TLSEnabled = true
	cfg.Server.TLSCertPath = "/nonexistent/cert.pem"

	errs := cfg.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "certificate file does not exist")
	assert.Contains(t, errs[1].Error(), "tls_key_path is required")
}
