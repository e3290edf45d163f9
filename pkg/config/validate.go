package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration and returns every problem found,
// joined. Each problem is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	m := c.Monitoring
	if m.ConfidenceThreshold < 0 || m.ConfidenceThreshold > 1 {
		fail("monitoring.confidence_threshold", "must be within [0, 1], got %v", m.ConfidenceThreshold)
	}
	if m.CheckIntervalSeconds <= 0 {
		fail("monitoring.check_interval_seconds", "must be positive, got %v", m.CheckIntervalSeconds)
	}
	if m.RunDurationSeconds <= 0 {
		fail("monitoring.run_duration_seconds", "must be positive, got %v", m.RunDurationSeconds)
	}
	if len(m.Zones) == 0 {
		fail("monitoring.zones", "at least one zone is required")
	}
	for i, z := range m.Zones {
		if strings.TrimSpace(z) == "" {
			fail(fmt.Sprintf("monitoring.zones[%d]", i), "must not be empty")
		}
	}
	if m.DetectionProbability < 0 || m.DetectionProbability > 1 {
		fail("monitoring.detection_probability", "must be within [0, 1], got %v", m.DetectionProbability)
	}

	validateBackend("reasoning.primary", c.Reasoning.Primary, fail)
	validateBackend("reasoning.fallback", c.Reasoning.Fallback, fail)

	switch c.Approval.Mode {
	case ApprovalPrompt, ApprovalDeny:
	case ApprovalRule:
		if strings.TrimSpace(c.Approval.Rule) == "" {
			fail("approval.rule", "required when approval.mode is %q", ApprovalRule)
		}
	default:
		fail("approval.mode", "unknown mode %q", c.Approval.Mode)
	}
	if c.Approval.TimeoutSeconds <= 0 {
		fail("approval.timeout_seconds", "must be positive, got %v", c.Approval.TimeoutSeconds)
	}

	switch c.Ledger.Driver {
	case LedgerMemory:
	case LedgerSQLite, LedgerPostgres:
		if c.Ledger.DSN == "" {
			fail("ledger.dsn", "required for driver %q", c.Ledger.Driver)
		}
	case LedgerHTTP:
		if c.Ledger.URL == "" {
			fail("ledger.url", "required for driver %q", LedgerHTTP)
		}
	default:
		fail("ledger.driver", "unknown driver %q", c.Ledger.Driver)
	}

	switch c.Dedup.Driver {
	case DedupNone, DedupMemory:
	case DedupRedis:
		if c.Dedup.RedisAddr == "" {
			fail("dedup.redis_addr", "required for driver %q", DedupRedis)
		}
	default:
		fail("dedup.driver", "unknown driver %q", c.Dedup.Driver)
	}

	if o := c.Observability; o.Enabled && o.OTLPEndpoint == "" {
		fail("observability.otlp_endpoint", "required when observability is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		fail("logging.format", "unknown format %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}

func validateBackend(field string, b BackendConfig, fail func(field, format string, args ...any)) {
	switch b.Type {
	case BackendDisabled, BackendHeuristic:
	case BackendLLM:
		if b.Model == "" {
			fail(field+".model", "required for type %q", BackendLLM)
		}
	default:
		fail(field+".type", "unknown backend type %q", b.Type)
		return
	}
	if b.Type != BackendDisabled && b.TimeoutSeconds <= 0 {
		fail(field+".timeout_seconds", "must be positive, got %v", b.TimeoutSeconds)
	}
	if b.RequestsPerMinute < 0 {
		fail(field+".requests_per_minute", "must not be negative")
	}
}
