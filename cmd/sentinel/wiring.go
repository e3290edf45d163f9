package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/sentinel/pkg/config"
	"github.com/Mindburn-Labs/sentinel/pkg/detection"
	"github.com/Mindburn-Labs/sentinel/pkg/escalation"
	"github.com/Mindburn-Labs/sentinel/pkg/ledger"
	"github.com/Mindburn-Labs/sentinel/pkg/llm"
	"github.com/Mindburn-Labs/sentinel/pkg/observability"
	"github.com/Mindburn-Labs/sentinel/pkg/patrol"
	"github.com/Mindburn-Labs/sentinel/pkg/reasoning"

	_ "github.com/lib/pq" // Postgres Driver
	_ "modernc.org/sqlite"
)

const version = "v0.1.0"

// loadConfig resolves the config path from the flag or SENTINEL_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is a fully wired patrol pipeline.
type app struct {
	cfg       *config.Config
	scheduler *patrol.Scheduler
	telemetry *observability.Provider
	closers   []func() error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}

// buildApp wires every stage from cfg. The prompt approval channel reads
// operator answers from stdin and writes prompts to stdout.
func buildApp(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, hooks patrol.Hooks) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	telemetry, err := buildTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.telemetry = telemetry

	seed := cfg.Monitoring.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	source := detection.NewSimulatedSource(seed, detection.ZonesFor(cfg.Monitoring.Zones), detection.DefaultScenarios, cfg.Monitoring.DetectionProbability)

	primary, err := buildBackend(cfg.Reasoning.Primary, "primary", cfg.Agent.Role)
	if err != nil {
		return nil, err
	}
	fallback, err := buildBackend(cfg.Reasoning.Fallback, "fallback", cfg.Agent.Role)
	if err != nil {
		return nil, err
	}
	coordinator := reasoning.NewCoordinator(
		reasoning.Role{Backend: primary, Timeout: cfg.Reasoning.Primary.Timeout()},
		reasoning.Role{Backend: fallback, Timeout: cfg.Reasoning.Fallback.Timeout()},
	).WithThreshold(cfg.Monitoring.ConfidenceThreshold)

	channel, err := buildChannel(cfg.Approval, stdin, stdout)
	if err != nil {
		return nil, err
	}
	gate := escalation.NewGate(channel, cfg.Approval.Timeout())

	service, closeService, err := buildLedger(ctx, cfg.Ledger, cfg.Agent.Name)
	if err != nil {
		return nil, err
	}
	if closeService != nil {
		a.closers = append(a.closers, closeService)
	}
	reporterName := cfg.Ledger.Reporter
	if reporterName == "" {
		reporterName = cfg.Agent.Name
	}
	reporter := ledger.NewReporter(service, reporterName, cfg.Ledger.Network)

	deduper, closeDeduper := buildDeduper(cfg.Dedup)
	if closeDeduper != nil {
		a.closers = append(a.closers, closeDeduper)
	}

	sched, err := patrol.New(patrol.Options{
		Agent:       cfg.Agent.Name,
		Threshold:   cfg.Monitoring.ConfidenceThreshold,
		Zones:       cfg.Monitoring.Zones,
		PollTimeout: cfg.Monitoring.Interval(),
	}, patrol.Deps{
		Source:    source,
		Status:    source,
		Evaluator: coordinator,
		Approver:  gate,
		Committer: reporter,
		Deduper:   deduper,
		Telemetry: telemetry,
		Hooks:     hooks,
	})
	if err != nil {
		return nil, err
	}
	a.scheduler = sched
	ok = true
	return a, nil
}

func buildTelemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	if !cfg.Observability.Enabled {
		return nil, nil
	}
	oc := observability.DefaultConfig()
	oc.Enabled = true
	oc.ServiceVersion = version
	oc.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	oc.Insecure = cfg.Observability.Insecure
	oc.SampleRate = cfg.Observability.SampleRate
	p, err := observability.New(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	return p, nil
}

// buildBackend returns a nil Backend for a disabled role.
func buildBackend(bc config.BackendConfig, role, agentRole string) (reasoning.Backend, error) {
	name := bc.Name
	if name == "" {
		name = role
	}
	switch bc.Type {
	case config.BackendDisabled, "":
		return nil, nil
	case config.BackendHeuristic:
		return reasoning.NewHeuristicBackend(name), nil
	case config.BackendLLM:
		client := llm.NewOpenAIClient(bc.BaseURL, bc.APIKey(), bc.Model, bc.Timeout())
		return reasoning.NewLLMBackend(name, agentRole, client, bc.RequestsPerMinute), nil
	default:
		return nil, fmt.Errorf("reasoning: unknown backend type %q for %s", bc.Type, role)
	}
}

func buildChannel(ac config.ApprovalConfig, stdin io.Reader, stdout io.Writer) (escalation.Channel, error) {
	switch ac.Mode {
	case config.ApprovalPrompt:
		return escalation.NewPromptChannel(stdin, stdout, ac.Approver), nil
	case config.ApprovalRule:
		ch, err := escalation.NewRuleChannel(ac.Rule)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.ApprovalDeny:
		return escalation.DenyChannel{}, nil
	default:
		return nil, fmt.Errorf("approval: unknown mode %q", ac.Mode)
	}
}

// buildLedger opens the configured ledger. The returned closer may be nil.
// The memory driver persists to a JSON file when a DSN path is set.
func buildLedger(ctx context.Context, lc config.LedgerConfig, issuer string) (ledger.Service, func() error, error) {
	switch lc.Driver {
	case config.LedgerMemory:
		if lc.DSN == "" {
			return ledger.NewMemoryService(), nil, nil
		}
		svc, err := ledger.NewFileService(lc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return svc, nil, nil
	case config.LedgerSQLite, config.LedgerPostgres:
		svc, db, err := openSQLLedger(ctx, lc)
		if err != nil {
			return nil, nil, err
		}
		return svc, db.Close, nil
	case config.LedgerHTTP:
		return ledger.NewHTTPService(lc.URL, issuer, lc.TokenSecret(), lc.Timeout()), nil, nil
	default:
		return nil, nil, fmt.Errorf("ledger: unknown driver %q", lc.Driver)
	}
}

func openSQLLedger(ctx context.Context, lc config.LedgerConfig) (*ledger.SQLService, *sql.DB, error) {
	driver, dialect := "sqlite", ledger.DialectSQLite
	if lc.Driver == config.LedgerPostgres {
		driver, dialect = "postgres", ledger.DialectPostgres
	}
	db, err := sql.Open(driver, lc.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: open %s: %w", driver, err)
	}
	svc := ledger.NewSQLService(db, dialect)
	if err := svc.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ledger: init %s: %w", driver, err)
	}
	return svc, db, nil
}

// buildDeduper returns a nil Deduper when suppression is off.
func buildDeduper(dc config.DedupConfig) (ledger.Deduper, func() error) {
	switch dc.Driver {
	case config.DedupMemory:
		return ledger.NewMemoryDeduper(), nil
	case config.DedupRedis:
		d := ledger.NewRedisDeduper(dc.RedisAddr, os.Getenv("REDIS_PASSWORD"), dc.RedisDB, dc.TTL())
		return d, d.Close
	default:
		return nil, nil
	}
}
