package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"localhost:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "node-1-group", cfg.Bus.GroupID)
	assert.Equal(t, 15, cfg.Bus.PollRetries)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Retry.BaseWait)
	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_addr: ":9001"
bus:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group_id: custom-group
redis:
  addr: redis-primary:6379
  db: 2
retry:
  max_retries: 3
  base_wait: 2s
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "custom-group", cfg.Bus.GroupID)
	assert.Equal(t, "redis-primary:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseWait)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unlisted sections keep their defaults.
	assert.Equal(t, 15, cfg.Bus.PollRetries)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Bus.GroupID, cfg.Bus.GroupID)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("SWARMFLOW_BUS_GROUP_ID", "env-group")
	t.Setenv("SWARMFLOW_BUS_BROKERS", "a:9092, b:9092")
	t.Setenv("SWARMFLOW_REDIS_DB", "7")
	t.Setenv("SWARMFLOW_RETRY_BASE_WAIT", "500ms")
	t.Setenv("SWARMFLOW_LOG_ENABLE_CALLER", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "env-group", cfg.Bus.GroupID)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, 7, cfg.Redis.DB)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseWait)
	assert.True(t, cfg.Log.EnableCaller)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("SF_BUS_GROUP_ID", "prefixed")

	cfg, err := NewLoader().WithEnvPrefix("SF").Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Bus.GroupID)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cfg := Default()
	cfg.Bus.Brokers = nil
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus.brokers")
	assert.Contains(t, err.Error(), `log.level "loud"`)
}

func TestCustomValidatorRuns(t *testing.T) {
	boom := errors.New("rejected")
	_, err := NewLoader().WithValidator(func(*Config) error { return boom }).Load()
	require.ErrorIs(t, err, boom)
}

func TestMalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger(LogConfig{Level: "noisy"})
	require.Error(t, err)
}
