package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
	assert.Equal(t, 4, cfg.LLD.Workers)
	assert.Equal(t, 30*24*time.Hour, cfg.LLD.DefaultLifetime)
	assert.Equal(t, 5, cfg.LLD.TxRetry.Attempts)
	assert.Equal(t, 128, cfg.LLD.Limits.HostName)
	assert.Equal(t, "none", cfg.Audit.Archive)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Same(t, cfg, Get())
}

func TestLoadReadsDurations(t *testing.T) {
	path := writeConfig(t, `
lld:
  workers: 2
  default_lifetime: 1h
  tx_retry:
    sleep: 10ms
audit:
  archive: minio
  minio:
    host: 127.0.0.1
    port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.LLD.Workers)
	assert.Equal(t, time.Hour, cfg.LLD.DefaultLifetime)
	assert.Equal(t, 10*time.Millisecond, cfg.LLD.TxRetry.Sleep)
	assert.Equal(t, "minio", cfg.Audit.Archive)
	assert.Equal(t, "lld-audit", cfg.Audit.Minio.Bucket)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("LLD_SERVER_PORT", "9100")
	t.Setenv("LLD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "server:\n  port: 70000\n"},
		{"workers", "lld:\n  workers: 0\n"},
		{"lifetime", "lld:\n  default_lifetime: -1h\n"},
		{"archive", "audit:\n  archive: s3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
