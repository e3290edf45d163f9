package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sentinel/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SENTINEL_THRESHOLD", "SENTINEL_INTERVAL", "SENTINEL_DURATION", "LOG_LEVEL",
		"DATABASE_URL", "REDIS_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Monitoring.ConfidenceThreshold)
	assert.Equal(t, 5*time.Second, cfg.Monitoring.Interval())
	assert.Equal(t, 120*time.Second, cfg.Monitoring.Duration())
	assert.Equal(t, []string{"Sector-1", "Sector-2", "Sector-3", "Sector-4"}, cfg.Monitoring.Zones)
	assert.Equal(t, config.BackendHeuristic, cfg.Reasoning.Primary.Type)
	assert.Equal(t, config.BackendDisabled, cfg.Reasoning.Fallback.Type)
	assert.Equal(t, config.ApprovalPrompt, cfg.Approval.Mode)
	assert.Equal(t, config.LedgerMemory, cfg.Ledger.Driver)
	assert.Equal(t, config.DedupNone, cfg.Dedup.Driver)
	assert.False(t, cfg.Observability.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  name: Sentinel 07
monitoring:
  confidence_threshold: 0.8
  check_interval_seconds: 2
  run_duration_seconds: 60
  zones: [North, South]
reasoning:
  primary:
    type: llm
    name: spoon
    base_url: http://localhost:1234/v1
    model: qwen2.5
    api_key_env: SPOON_KEY
    timeout_seconds: 20
    requests_per_minute: 30
  fallback:
    type: heuristic
    timeout_seconds: 5
approval:
  mode: rule
  rule: observation.confidence >= 0.9
ledger:
  driver: http
  url: https://ledger.example.org
  token_secret_env: LEDGER_SECRET
dedup:
  driver: memory
`), 0o600))
	t.Setenv("SPOON_KEY", "sk-local")
	t.Setenv("LEDGER_SECRET", "s3cret")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Sentinel 07", cfg.Agent.Name)
	assert.Equal(t, "an autonomous disaster-response patrol agent", cfg.Agent.Role)
	assert.Equal(t, 0.8, cfg.Monitoring.ConfidenceThreshold)
	assert.Equal(t, []string{"North", "South"}, cfg.Monitoring.Zones)
	assert.Equal(t, 20*time.Second, cfg.Reasoning.Primary.Timeout())
	assert.Equal(t, "sk-local", cfg.Reasoning.Primary.APIKey())
	assert.Equal(t, 30, cfg.Reasoning.Primary.RequestsPerMinute)
	assert.Equal(t, config.BackendHeuristic, cfg.Reasoning.Fallback.Type)
	assert.Equal(t, config.ApprovalRule, cfg.Approval.Mode)
	assert.Equal(t, 300*time.Second, cfg.Approval.Timeout())
	assert.Equal(t, []byte("s3cret"), cfg.Ledger.TokenSecret())
	assert.Equal(t, config.DedupMemory, cfg.Dedup.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Dedup.TTL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTINEL_THRESHOLD", "0.9")
	t.Setenv("SENTINEL_INTERVAL", "250ms")
	t.Setenv("SENTINEL_DURATION", "30")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://sentinel@db:5432/ledger?sslmode=disable")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Monitoring.ConfidenceThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitoring.Interval())
	assert.Equal(t, 30*time.Second, cfg.Monitoring.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, config.LedgerPostgres, cfg.Ledger.Driver)
	assert.Equal(t, config.DedupRedis, cfg.Dedup.Driver)
	assert.Equal(t, "redis:6379", cfg.Dedup.RedisAddr)
	assert.True(t, cfg.Observability.Enabled)
	assert.Equal(t, "collector:4317", cfg.Observability.OTLPEndpoint)
}

func TestLoad_SQLiteFromDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "file:sentinel.db")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.LedgerSQLite, cfg.Ledger.Driver)
	assert.Equal(t, "file:sentinel.db", cfg.Ledger.DSN)
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTINEL_THRESHOLD", "high")

	_, err := config.Load("")
	var ce *config.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "SENTINEL_THRESHOLD", ce.Field)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  treshold: 0.5\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treshold")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"threshold above one", func(c *config.Config) { c.Monitoring.ConfidenceThreshold = 1.2 }, "monitoring.confidence_threshold"},
		{"threshold negative", func(c *config.Config) { c.Monitoring.ConfidenceThreshold = -0.1 }, "monitoring.confidence_threshold"},
		{"zero interval", func(c *config.Config) { c.Monitoring.CheckIntervalSeconds = 0 }, "monitoring.check_interval_seconds"},
		{"negative duration", func(c *config.Config) { c.Monitoring.RunDurationSeconds = -1 }, "monitoring.run_duration_seconds"},
		{"no zones", func(c *config.Config) { c.Monitoring.Zones = nil }, "monitoring.zones"},
		{"unknown backend", func(c *config.Config) { c.Reasoning.Fallback.Type = "oracle" }, "reasoning.fallback.type"},
		{"llm without model", func(c *config.Config) { c.Reasoning.Primary.Type = config.BackendLLM }, "reasoning.primary.model"},
		{"rule without expression", func(c *config.Config) { c.Approval.Mode = config.ApprovalRule }, "approval.rule"},
		{"unknown approval", func(c *config.Config) { c.Approval.Mode = "auto" }, "approval.mode"},
		{"sqlite without dsn", func(c *config.Config) { c.Ledger.Driver = config.LedgerSQLite }, "ledger.dsn"},
		{"http without url", func(c *config.Config) { c.Ledger.Driver = config.LedgerHTTP }, "ledger.url"},
		{"unknown ledger", func(c *config.Config) { c.Ledger.Driver = "chain" }, "ledger.driver"},
		{"redis without addr", func(c *config.Config) { c.Dedup.Driver = config.DedupRedis }, "dedup.redis_addr"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var ce *config.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	assert.NoError(t, config.Default().Validate())
}

func TestParse_EmptyDocumentKeepsDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
