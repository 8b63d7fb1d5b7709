package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvHost, EnvPort, EnvCertPath, EnvKeyPath,
		EnvDefaultTTL, EnvMaxTTL, EnvCleanupInterval, EnvMaxTracked, EnvLogLevel, EnvLogFormat} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvCertPath, "/tmp/cert.pem")
	os.Setenv(EnvKeyPath, "/tmp/key.pem")
	defer clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8443", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, time.Hour, cfg.CertCheckInterval())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	tc := cfg.TrackingConfig()
	assert.Equal(t, 5*time.Minute, tc.DefaultTTL)
	assert.Equal(t, time.Hour, tc.MaxTTL)
	assert.Equal(t, time.Minute, tc.CleanupInterval)
	assert.Zero(t, tc.MaxTrackedConnections)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	path := filepath.Join(t.TempDir(), "ttlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9443
  request_timeout_secs: 15
ssl:
  cert_path: /etc/ssl/fullchain.pem
  key_path: /etc/ssl/privkey.pem
tracking:
  default_ttl_secs: 60
  max_ttl_secs: 300
  cleanup_interval_secs: 10
  max_tracked_connections: 1000
log:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9443", cfg.Addr())
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "/etc/ssl/fullchain.pem", cfg.SSL.CertPath)
	assert.Equal(t, "json", cfg.Log.Format)

	tc := cfg.TrackingConfig()
	assert.Equal(t, 60*time.Second, tc.DefaultTTL)
	assert.Equal(t, 300*time.Second, tc.MaxTTL)
	assert.Equal(t, 10*time.Second, tc.CleanupInterval)
	assert.Equal(t, 1000, tc.MaxTrackedConnections)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	path := filepath.Join(t.TempDir(), "ttlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9443
ssl:
  cert_path: /etc/ssl/fullchain.pem
  key_path: /etc/ssl/privkey.pem
tracking:
  default_ttl_secs: 60
`), 0o600))

	os.Setenv(EnvPort, "10443")
	os.Setenv(EnvDefaultTTL, "2m")
	os.Setenv(EnvMaxTracked, "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10443, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.TrackingConfig().DefaultTTL)
	assert.Equal(t, 500, cfg.Tracking.MaxTrackedConnections)
}

func TestLoad_DurationEnvAcceptsPlainSeconds(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvCertPath, "/tmp/cert.pem")
	os.Setenv(EnvKeyPath, "/tmp/key.pem")
	os.Setenv(EnvCleanupInterval, "45")
	defer clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.TrackingConfig().CleanupInterval)
}

func TestLoad_InvalidConfigAbortsStartup(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvCertPath, "/tmp/cert.pem")
	os.Setenv(EnvKeyPath, "/tmp/key.pem")
	defer clearEnv(t)

	// max TTL below default TTL must refuse to start.
	os.Setenv(EnvDefaultTTL, "10m")
	os.Setenv(EnvMaxTTL, "1m")
	_, err := Load("")
	require.Error(t, err)

	// Missing certificate paths as well.
	clearEnv(t)
	_, err = Load("")
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ttlgate.yaml")
	require.Error(t, err)
}
