package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  port: 6432
  user: tracking
  password: secret
  database: shoply

rabbitmq:
  host: mq.internal
  port: 5673
  user: tracking
  password: secret

tracking:
  seed_timeout: 2s
  cleanup_interval: 10m
  client_backoff: 500ms
  client_retries: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "mq.internal", cfg.RabbitMQ.Host)
	assert.Equal(t, 2*time.Second, cfg.Tracking.SeedTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Tracking.CleanupInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Tracking.ClientBackoff)
	assert.Equal(t, 3, cfg.Tracking.ClientRetries)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost", cfg.RabbitMQ.Host)
	assert.Equal(t, 5*time.Second, cfg.Tracking.SeedTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Tracking.CleanupInterval)
	assert.Equal(t, time.Second, cfg.Tracking.ClientBackoff)
	assert.Equal(t, 5, cfg.Tracking.ClientRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}
