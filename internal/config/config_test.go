package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "@every 30s", cfg.Consumer.Schedule)
	assert.Equal(t, 15*time.Second, cfg.Consumer.SendTimeout)
}

func TestParseYAML(t *testing.T) {
	cfg := Default()
	err := cfg.parseYAML([]byte(`
store: memory
consumer:
  schedule: "*/5 * * * *"
  send_timeout: 20s
providers:
  sms:
    kind: http
    endpoint: https://sms.example.com/v1/messages
    token: secret
`))
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "*/5 * * * *", cfg.Consumer.Schedule)
	assert.Equal(t, 20*time.Second, cfg.Consumer.SendTimeout)
	assert.Equal(t, ProviderHTTP, cfg.Providers.SMS.Kind)
	assert.Equal(t, "secret", cfg.Providers.SMS.Token)

	// незаданные ключи сохраняют значения по умолчанию
	assert.Equal(t, 100, cfg.Consumer.BatchSize)
	assert.Equal(t, ProviderLog, cfg.Providers.Email.Kind)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.parseYAML([]byte("consumer:\n  schedule: \"@every 1m\"\n")))

	err := cfg.applyEnv(envMap(map[string]string{
		"CONSUMER_SCHEDULE":   "@every 10s",
		"CONSUMER_BATCH_SIZE": "25",
		"SEND_TIMEOUT":        "5s",
		"OTEL_ENABLED":        "true",
		"REDIS_URL":           "redis://localhost:6379/0",
		"DB_URL":              "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "@every 10s", cfg.Consumer.Schedule)
	assert.Equal(t, 25, cfg.Consumer.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Consumer.SendTimeout)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, Default().Database.URL, cfg.Database.URL, "пустая переменная не затирает значение")
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"SEND_TIMEOUT":        "soon",
		"CONSUMER_BATCH_SIZE": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEND_TIMEOUT")
	assert.Contains(t, err.Error(), "CONSUMER_BATCH_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "mysql" }},
		{"bad schedule", func(c *Config) { c.Consumer.Schedule = "every minute" }},
		{"http without endpoint", func(c *Config) { c.Providers.Email.Kind = ProviderHTTP }},
		{"unknown provider", func(c *Config) { c.Providers.SMS.Kind = "pigeon" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  poll_interval: 3s\n"), 0o600))

	t.Setenv("FIELDFLOW_CONFIG", path)
	t.Setenv("ENGINE_BATCH_SIZE", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 7, cfg.Engine.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("FIELDFLOW_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestApplyEnv_Log(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(envMap(map[string]string{
		"LOG_LEVEL":  "DEBUG",
		"LOG_FORMAT": "text",
	})))

	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}
