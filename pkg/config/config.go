// Package config loads the sentinel configuration from YAML with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	BackendLLM       = "llm"
	BackendHeuristic = "heuristic"
	BackendDisabled  = "disabled"
)

// Approval modes.
const (
	ApprovalPrompt = "prompt"
	ApprovalRule   = "rule"
	ApprovalDeny   = "deny"
)

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerHTTP     = "http"
)

// Dedup drivers.
const (
	DedupNone   = "none"
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Agent         AgentConfig         `yaml:"agent" json:"agent"`
	Monitoring    MonitoringConfig    `yaml:"monitoring" json:"monitoring"`
	Reasoning     ReasoningConfig     `yaml:"reasoning" json:"reasoning"`
	Approval      ApprovalConfig      `yaml:"approval" json:"approval"`
	Ledger        LedgerConfig        `yaml:"ledger" json:"ledger"`
	Dedup         DedupConfig         `yaml:"dedup" json:"dedup"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

type AgentConfig struct {
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`
}

type MonitoringConfig struct {
	ConfidenceThreshold  float64  `yaml:"confidence_threshold" json:"confidence_threshold"`
	CheckIntervalSeconds float64  `yaml:"check_interval_seconds" json:"check_interval_seconds"`
	RunDurationSeconds   float64  `yaml:"run_duration_seconds" json:"run_duration_seconds"`
	Zones                []string `yaml:"zones" json:"zones"`
	// DetectionProbability and Seed drive the simulated feed.
	DetectionProbability float64 `yaml:"detection_probability" json:"detection_probability"`
	Seed                 uint64  `yaml:"seed" json:"seed"`
}

// Interval is the pause between patrol cycles.
func (m MonitoringConfig) Interval() time.Duration { return seconds(m.CheckIntervalSeconds) }

// Duration is the total patrol session length.
func (m MonitoringConfig) Duration() time.Duration { return seconds(m.RunDurationSeconds) }

type ReasoningConfig struct {
	Primary  BackendConfig `yaml:"primary" json:"primary"`
	Fallback BackendConfig `yaml:"fallback" json:"fallback"`
}

type BackendConfig struct {
	Type              string  `yaml:"type" json:"type"`
	Name              string  `yaml:"name" json:"name"`
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	Model             string  `yaml:"model" json:"model"`
	APIKeyEnv         string  `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds" json:"timeout_seconds"`
	RequestsPerMinute int     `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// Timeout bounds a single call to the backend.
func (b BackendConfig) Timeout() time.Duration { return seconds(b.TimeoutSeconds) }

// APIKey resolves the key from the configured environment variable.
func (b BackendConfig) APIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

type ApprovalConfig struct {
	Mode           string  `yaml:"mode" json:"mode"`
	Rule           string  `yaml:"rule" json:"rule"`
	Approver       string  `yaml:"approver" json:"approver"`
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds"`
}

func (a ApprovalConfig) Timeout() time.Duration { return seconds(a.TimeoutSeconds) }

type LedgerConfig struct {
	Driver         string  `yaml:"driver" json:"driver"`
	DSN            string  `yaml:"dsn" json:"dsn"`
	URL            string  `yaml:"url" json:"url"`
	TokenSecretEnv string  `yaml:"token_secret_env" json:"token_secret_env"`
	Network        string  `yaml:"network" json:"network"`
	Reporter       string  `yaml:"reporter" json:"reporter"`
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds"`
}

func (l LedgerConfig) Timeout() time.Duration { return seconds(l.TimeoutSeconds) }

// TokenSecret resolves the HTTP ledger signing secret.
func (l LedgerConfig) TokenSecret() []byte {
	if l.TokenSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(l.TokenSecretEnv))
}

type DedupConfig struct {
	Driver    string  `yaml:"driver" json:"driver"`
	RedisAddr string  `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int     `yaml:"redis_db" json:"redis_db"`
	TTLHours  float64 `yaml:"ttl_hours" json:"ttl_hours"`
}

func (d DedupConfig) TTL() time.Duration {
	return time.Duration(d.TTLHours * float64(time.Hour))
}

type ObservabilityConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration: an offline run against the
// simulated feed with a heuristic primary and operator approval.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name: "Sentinel 01",
			Role: "an autonomous disaster-response patrol agent",
		},
		Monitoring: MonitoringConfig{
			ConfidenceThreshold:  0.75,
			CheckIntervalSeconds: 5,
			RunDurationSeconds:   120,
			Zones:                []string{"Sector-1", "Sector-2", "Sector-3", "Sector-4"},
			DetectionProbability: 0.25,
		},
		Reasoning: ReasoningConfig{
			Primary:  BackendConfig{Type: BackendHeuristic, Name: "heuristic", TimeoutSeconds: 10},
			Fallback: BackendConfig{Type: BackendDisabled, Name: "fallback", TimeoutSeconds: 30},
		},
		Approval: ApprovalConfig{
			Mode:           ApprovalPrompt,
			Approver:       "operator",
			TimeoutSeconds: 300,
		},
		Ledger: LedgerConfig{
			Driver:         LedgerMemory,
			Network:        "testnet",
			TimeoutSeconds: 15,
		},
		Dedup: DedupConfig{
			Driver:   DedupNone,
			TTLHours: 24,
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: "localhost:4317",
			Insecure:     true,
			SampleRate:   1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SENTINEL_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "SENTINEL_THRESHOLD", Reason: "not a number: " + v}
		}
		c.Monitoring.ConfidenceThreshold = f
	}
	if v := os.Getenv("SENTINEL_INTERVAL"); v != "" {
		s, err := parseSeconds(v)
		if err != nil {
			return &ConfigError{Field: "SENTINEL_INTERVAL", Reason: err.Error()}
		}
		c.Monitoring.CheckIntervalSeconds = s
	}
	if v := os.Getenv("SENTINEL_DURATION"); v != "" {
		s, err := parseSeconds(v)
		if err != nil {
			return &ConfigError{Field: "SENTINEL_DURATION", Reason: err.Error()}
		}
		c.Monitoring.RunDurationSeconds = s
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Ledger.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Ledger.Driver = LedgerPostgres
		} else if c.Ledger.Driver == LedgerMemory {
			c.Ledger.Driver = LedgerSQLite
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Dedup.Driver = DedupRedis
		c.Dedup.RedisAddr = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Observability.Enabled = true
		c.Observability.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	return nil
}

// parseSeconds accepts a Go duration ("5s", "2m") or a bare number of seconds.
func parseSeconds(v string) (float64, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d.Seconds(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %s", v)
	}
	return f, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
