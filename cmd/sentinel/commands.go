package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/sentinel/pkg/canonicalize"
	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/ledger"
	"github.com/Mindburn-Labs/sentinel/pkg/patrol"
)

// runPatrolCmd runs a timed patrol session until the configured duration
// elapses or SIGINT/SIGTERM arrives, then prints the session summary.
func runPatrolCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		configPath string
		duration   time.Duration
		interval   time.Duration
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to sentinel.yaml")
	cmd.DurationVar(&duration, "duration", 0, "Override the session length")
	cmd.DurationVar(&interval, "interval", 0, "Override the pause between cycles")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the session summary as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if duration <= 0 {
		duration = cfg.Monitoring.Duration()
	}
	if interval <= 0 {
		interval = cfg.Monitoring.Interval()
	}
	slog.SetDefault(newLogger(cfg.Logging, stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hooks := patrol.Hooks{
		OnStart: func(agent string, zones []string, at time.Time) {
			_, _ = fmt.Fprintf(stdout, "%s%s on patrol%s: %d zones, threshold %.2f, started %s\n",
				ColorBold, agent, ColorReset, len(zones), cfg.Monitoring.ConfidenceThreshold, at.Format(time.RFC3339))
		},
		OnCycle: func(res contracts.CycleResult) {
			printCycle(stdout, res)
		},
	}
	a, err := buildApp(ctx, cfg, stdin, stdout, hooks)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	stats := a.scheduler.Run(ctx, duration, interval)

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return 0
	}
	printSummary(stdout, stats)
	return 0
}

// runOnceCmd runs a single cycle and prints its result as JSON.
func runOnceCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("once", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var configPath string
	cmd.StringVar(&configPath, "config", "", "Path to sentinel.yaml")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.Logging, stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, stdin, stderr, patrol.Hooks{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.Background()) }()

	res := a.scheduler.RunOnce(ctx)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if res.State == contracts.StateCommitFailed || res.State == contracts.StateFailed {
		return 1
	}
	return 0
}

// runFingerprintCmd prints the ledger fingerprint of an observation read from
// a JSON file, or from stdin when the path is "-".
func runFingerprintCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	showCanonical := cmd.Bool("canonical", false, "Also print the canonical payload")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: sentinel fingerprint [-canonical] <observation.json|->")
		return 2
	}

	var (
		data []byte
		err  error
	)
	if path := cmd.Arg(0); path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var obs contracts.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: decode observation: %v\n", err)
		return 1
	}
	canonical, err := canonicalize.CanonicalObservation(obs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, canonicalize.HashBytes(canonical))
	if *showCanonical {
		_, _ = fmt.Fprintln(stdout, string(canonical))
	}
	return 0
}

// runLedgerCmd inspects a ledger that supports reads.
func runLedgerCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "list" {
		_, _ = fmt.Fprintln(stderr, "Usage: sentinel ledger list [-config path] [-json]")
		return 2
	}
	cmd := flag.NewFlagSet("ledger list", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		configPath string
		jsonOutput bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to sentinel.yaml")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx := context.Background()
	svc, closeFn, err := buildLedger(ctx, cfg.Ledger, cfg.Agent.Name)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}
	reader, ok := svc.(ledger.Reader)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Error: ledger driver %q does not support listing\n", cfg.Ledger.Driver)
		return 1
	}
	records, err := reader.List(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REFERENCE\tFINGERPRINT\tREPORTER\tNETWORK\tCOMMITTED")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Reference, shortHash(r.Fingerprint), r.Reporter, r.Network, r.CommittedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
	return 0
}

// runValidateCmd loads the configuration and prints the resolved result.
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		configPath string
		quiet      bool
	)
	cmd.StringVar(&configPath, "config", "", "Path to sentinel.yaml")
	cmd.BoolVar(&quiet, "q", false, "Only report errors")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%sInvalid configuration%s\n", ColorRed, ColorReset)
		for _, line := range strings.Split(err.Error(), "\n") {
			_, _ = fmt.Fprintf(stderr, "  - %s\n", line)
		}
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%sConfiguration OK%s\n", ColorGreen, ColorReset)
	if quiet {
		return 0
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = stdout.Write(out)
	return 0
}

func printCycle(w io.Writer, res contracts.CycleResult) {
	switch res.State {
	case contracts.StateClear:
		_, _ = fmt.Fprintf(w, "%s[%s] %s clear%s\n", ColorGray, res.FinishedAt.Format("15:04:05"), res.ZoneID, ColorReset)
		return
	case contracts.StateFailed:
		_, _ = fmt.Fprintf(w, "%s[%s] %s feed error: %s%s\n", ColorRed, res.FinishedAt.Format("15:04:05"), res.ZoneID, res.Err, ColorReset)
		return
	}

	color := ColorYellow
	switch res.State {
	case contracts.StateCommitted:
		color = ColorGreen
	case contracts.StateCommitFailed:
		color = ColorRed
	}
	label := ""
	if res.Observation != nil {
		label = fmt.Sprintf("%s (%.0f%%)", res.Observation.Label(), res.Observation.Confidence*100)
	}
	_, _ = fmt.Fprintf(w, "%s[%s] %s %s: %s%s", color, res.FinishedAt.Format("15:04:05"), res.ZoneID, label, res.State, ColorReset)
	if d := res.Decision; d != nil {
		_, _ = fmt.Fprintf(w, " basis=%s mode=%s confidence=%.0f", d.Basis, d.Mode, d.Confidence)
	}
	if res.Receipt != nil {
		_, _ = fmt.Fprintf(w, " ref=%s", res.Receipt.ExternalReference)
	}
	if res.Err != "" {
		_, _ = fmt.Fprintf(w, " error=%q", res.Err)
	}
	_, _ = fmt.Fprintln(w)
}

func printSummary(w io.Writer, s patrol.SessionStats) {
	fallback := "no"
	if s.FallbackUsed {
		fallback = "yes"
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sSESSION SUMMARY%s\n", ColorBold, ColorReset)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "  Cycles\t%d\n", s.Cycles)
	_, _ = fmt.Fprintf(tw, "  Incidents detected\t%d\n", s.Detected)
	_, _ = fmt.Fprintf(tw, "  Reported to ledger\t%d\n", s.Reported)
	_, _ = fmt.Fprintf(tw, "  Success rate\t%.1f%%\n", s.SuccessRate())
	_, _ = fmt.Fprintf(tw, "  Fallback used\t%s\n", fallback)
	_, _ = fmt.Fprintf(tw, "  Held below threshold\t%d\n", s.Held)
	_, _ = fmt.Fprintf(tw, "  Rejected\t%d\n", s.Rejected)
	_, _ = fmt.Fprintf(tw, "  Duplicates\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(tw, "  Commit failures\t%d\n", s.CommitFailed)
	_, _ = fmt.Fprintf(tw, "  Failed cycles\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(tw, "  Aborted\t%d\n", s.Aborted)
	_ = tw.Flush()
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
