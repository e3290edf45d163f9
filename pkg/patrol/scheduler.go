// Package patrol runs the sequential patrol loop: poll a zone, reason about
// what was seen, decide, ask for approval and commit to the ledger.
package patrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/detection"
	"github.com/Mindburn-Labs/sentinel/pkg/escalation"
	"github.com/Mindburn-Labs/sentinel/pkg/ledger"
	"github.com/Mindburn-Labs/sentinel/pkg/observability"
)

// DefaultPollTimeout bounds a single detection poll.
const DefaultPollTimeout = 30 * time.Second

// Evaluator produces the merged decision for an observation.
type Evaluator interface {
	Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) contracts.Decision
}

// Approver obtains a human approval for an escalation.
type Approver interface {
	Request(ctx context.Context, obs contracts.Observation, decision contracts.Decision) (contracts.ApprovalOutcome, error)
}

// Committer writes approved observations to the ledger.
type Committer interface {
	Fingerprint(obs contracts.Observation) (string, error)
	Commit(ctx context.Context, obs contracts.Observation) (contracts.Receipt, error)
}

// Deps are the pipeline stages. Status, Deduper, Telemetry and Hooks are optional.
type Deps struct {
	Source    detection.Source
	Status    detection.StatusReporter
	Evaluator Evaluator
	Approver  Approver
	Committer Committer
	Deduper   ledger.Deduper
	Telemetry *observability.Provider
	Hooks     Hooks
}

// Hooks receive session events. Any field may be nil.
type Hooks struct {
	OnStart func(agent string, zones []string, at time.Time)
	OnCycle func(contracts.CycleResult)
	OnStop  func(SessionStats)
}

// Options tune the scheduler.
type Options struct {
	Agent       string
	Threshold   float64
	Zones       []string
	PollTimeout time.Duration
	// MaxCycles stops the session after that many cycles when positive.
	MaxCycles int
}

// Scheduler owns the patrol loop and its statistics.
type Scheduler struct {
	opts   Options
	deps   Deps
	clock  func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	stats    SessionStats
	nextZone int
	running  bool
}

// New creates a scheduler. It returns an error when a required stage is missing.
func New(opts Options, deps Deps) (*Scheduler, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("patrol: detection source is required")
	case deps.Evaluator == nil:
		return nil, errors.New("patrol: evaluator is required")
	case deps.Approver == nil:
		return nil, errors.New("patrol: approver is required")
	case deps.Committer == nil:
		return nil, errors.New("patrol: committer is required")
	case len(opts.Zones) == 0:
		return nil, errors.New("patrol: at least one zone is required")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Agent == "" {
		opts.Agent = "sentinel"
	}
	return &Scheduler{
		opts:   opts,
		deps:   deps,
		clock:  time.Now,
		logger: slog.Default().With("component", "patrol"),
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(l *slog.Logger) *Scheduler {
	s.logger = l.With("component", "patrol")
	return s
}

// Stats returns a snapshot of the session statistics.
func (s *Scheduler) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run patrols until duration has elapsed, MaxCycles is reached or ctx is
// cancelled, sleeping interval between cycles. Cancellation is honoured at
// cycle boundaries and at the checkpoints inside a cycle; calls already in
// flight are allowed to finish. Run never fails: per-cycle errors end up in
// the cycle outcome.
func (s *Scheduler) Run(ctx context.Context, duration, interval time.Duration) SessionStats {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "patrol session already running")
		return s.Stats()
	}
	s.running = true
	start := s.clock()
	s.stats = SessionStats{StartedAt: start}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "patrol session started",
		"agent", s.opts.Agent,
		"zones", s.opts.Zones,
		"threshold", s.opts.Threshold,
		"duration", duration,
		"interval", interval,
	)
	if s.deps.Hooks.OnStart != nil {
		s.deps.Hooks.OnStart(s.opts.Agent, s.opts.Zones, start)
	}

	for cycles := 0; ; cycles++ {
		if ctx.Err() != nil {
			break
		}
		if s.clock().Sub(start) >= duration {
			break
		}
		if s.opts.MaxCycles > 0 && cycles >= s.opts.MaxCycles {
			break
		}
		s.RunOnce(ctx)
		if !s.sleep(ctx, interval) {
			break
		}
	}

	s.mu.Lock()
	s.stats.StoppedAt = s.clock()
	stats := s.stats
	s.running = false
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "patrol session stopped",
		"cycles", stats.Cycles,
		"detected", stats.Detected,
		"reported", stats.Reported,
		"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
		"fallback_used", stats.FallbackUsed,
		"cancelled", ctx.Err() != nil,
	)
	if s.deps.Hooks.OnStop != nil {
		s.deps.Hooks.OnStop(stats)
	}
	return stats
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunOnce patrols the next zone in round-robin order and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) contracts.CycleResult {
	s.mu.Lock()
	zone := s.opts.Zones[s.nextZone%len(s.opts.Zones)]
	s.nextZone++
	if s.stats.StartedAt.IsZero() {
		s.stats.StartedAt = s.clock()
	}
	s.mu.Unlock()

	res := s.cycle(ctx, zone)

	s.mu.Lock()
	s.stats.record(res)
	s.mu.Unlock()

	s.deps.Telemetry.RecordOutcome(ctx, string(res.State), attribute.String("zone", zone))
	if s.deps.Hooks.OnCycle != nil {
		s.deps.Hooks.OnCycle(res)
	}
	return res
}

// cycle runs one observation through the state machine. External calls run
// on a context detached from ctx so cancellation never interrupts them; ctx
// is only consulted at the checkpoints.
func (s *Scheduler) cycle(ctx context.Context, zone string) (res contracts.CycleResult) {
	res = contracts.CycleResult{
		CycleID:   uuid.NewString(),
		ZoneID:    zone,
		StartedAt: s.clock(),
	}
	log := s.logger.With("cycle_id", res.CycleID, "zone", zone)

	ctx, done := s.deps.Telemetry.TrackOperation(ctx, "patrol.cycle", attribute.String("zone", zone))
	detached := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			s.recoverCycle(&res, r, log)
		}
		res.FinishedAt = s.clock()
		var err error
		if res.Err != "" {
			err = errors.New(res.Err)
		}
		done(err)
		s.logCycle(ctx, log, res)
	}()

	obs, err := s.poll(detached, zone)
	if err != nil {
		res.State = contracts.StateFailed
		res.Err = err.Error()
		return res
	}
	if obs == nil {
		res.State = contracts.StateClear
		return res
	}
	res.Observation = obs
	s.enter(&res, contracts.StateDetected, log)

	net := s.networkState(detached, log)
	decision := s.deps.Evaluator.Evaluate(detached, *obs, net)
	res.Decision = &decision
	s.enter(&res, contracts.StateAnalyzed, log)

	if ctx.Err() != nil {
		s.enter(&res, contracts.StateAborted, log)
		return res
	}

	if !escalation.Decide(*obs, decision) {
		s.enter(&res, contracts.StateEscalated, log)
		return res
	}

	if fp, err := s.deps.Committer.Fingerprint(*obs); err != nil {
		log.WarnContext(ctx, "fingerprint failed", "error", err)
	} else {
		res.Fingerprint = fp
	}

	if s.deps.Deduper != nil && res.Fingerprint != "" {
		seen, err := s.deps.Deduper.Seen(detached, res.Fingerprint)
		if err != nil {
			log.WarnContext(ctx, "dedup lookup failed, continuing", "error", err)
		} else if seen {
			s.enter(&res, contracts.StateDuplicate, log)
			return res
		}
	}

	s.enter(&res, contracts.StatePendingApproval, log)
	outcome, err := s.deps.Approver.Request(detached, *obs, decision)
	res.Approval = &outcome
	if err != nil {
		res.Err = err.Error()
		log.WarnContext(ctx, "approval failed closed", "error", err)
	}
	if err != nil || !outcome.Approved {
		s.enter(&res, contracts.StateRejected, log)
		return res
	}

	if ctx.Err() != nil {
		s.enter(&res, contracts.StateAborted, log)
		return res
	}

	receipt, err := s.commit(detached, *obs)
	if err != nil {
		res.Err = err.Error()
		if ledger.IsDuplicate(err) {
			s.enter(&res, contracts.StateDuplicate, log)
		} else {
			s.enter(&res, contracts.StateCommitFailed, log)
		}
		return res
	}
	res.Receipt = &receipt
	s.enter(&res, contracts.StateCommitted, log)

	if s.deps.Deduper != nil {
		if err := s.deps.Deduper.Mark(detached, receipt.Fingerprint); err != nil {
			log.WarnContext(ctx, "dedup mark failed", "error", err)
		}
	}
	return res
}

func (s *Scheduler) poll(ctx context.Context, zone string) (obs *contracts.Observation, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PollTimeout)
	defer cancel()

	ctx, done := s.deps.Telemetry.TrackOperation(ctx, "detection.poll", attribute.String("zone", zone))
	defer func() { done(err) }()

	obs, err = s.deps.Source.Poll(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("patrol: poll %s: %w", zone, err)
	}
	return obs, nil
}

func (s *Scheduler) commit(ctx context.Context, obs contracts.Observation) (receipt contracts.Receipt, err error) {
	ctx, done := s.deps.Telemetry.TrackOperation(ctx, "ledger.commit", attribute.String("zone", obs.ZoneID))
	defer func() { done(err) }()
	return s.deps.Committer.Commit(ctx, obs)
}

func (s *Scheduler) networkState(ctx context.Context, log *slog.Logger) contracts.NetworkState {
	if s.deps.Status == nil {
		return contracts.DefaultNetworkState()
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.PollTimeout)
	defer cancel()
	ns, err := s.deps.Status.NetworkState(ctx)
	if err != nil {
		log.WarnContext(ctx, "network status unavailable, using defaults", "error", err)
		return contracts.DefaultNetworkState()
	}
	return ns
}

// recoverCycle ends a cycle whose stage panicked. The cycle is held: Failed
// before approval, CommitFailed once the commit was under way. A cycle that
// already reached a terminal state keeps it.
func (s *Scheduler) recoverCycle(res *contracts.CycleResult, r any, log *slog.Logger) {
	res.Err = fmt.Sprintf("panic: %v", r)
	log.Error("cycle stage panicked", "panic", r, "state", res.State)

	switch {
	case res.State.Terminal():
	case res.State == contracts.StatePendingApproval:
		s.enter(res, contracts.StateCommitFailed, log)
	case len(res.Path) == 0:
		res.State = contracts.StateFailed
	default:
		s.enter(res, contracts.StateFailed, log)
	}
}

// enter moves the cycle to state. The first state of an observed cycle is
// Detected; every later move must be a legal transition.
func (s *Scheduler) enter(res *contracts.CycleResult, state contracts.CycleState, log *slog.Logger) {
	if len(res.Path) > 0 && !contracts.CanTransition(res.State, state) {
		log.Error("illegal cycle transition", "from", res.State, "to", state)
	}
	res.Path = append(res.Path, state)
	res.State = state
}

func (s *Scheduler) logCycle(ctx context.Context, log *slog.Logger, res contracts.CycleResult) {
	attrs := []any{"state", res.State, "elapsed", res.FinishedAt.Sub(res.StartedAt)}
	if res.Observation != nil {
		attrs = append(attrs, "incident", res.Observation.Label(), "confidence", res.Observation.Confidence)
	}
	if res.Decision != nil {
		attrs = append(attrs, "basis", res.Decision.Basis, "mode", res.Decision.Mode, "should_report", res.Decision.ShouldReport)
	}
	if res.Fingerprint != "" {
		attrs = append(attrs, "fingerprint", res.Fingerprint)
	}
	if res.Receipt != nil {
		attrs = append(attrs, "reference", res.Receipt.ExternalReference)
	}
	if res.Err != "" {
		attrs = append(attrs, "error", res.Err)
	}

	switch res.State {
	case contracts.StateClear:
		log.DebugContext(ctx, "cycle finished", attrs...)
	case contracts.StateFailed, contracts.StateCommitFailed:
		log.WarnContext(ctx, "cycle finished", attrs...)
	default:
		log.InfoContext(ctx, "cycle finished", attrs...)
	}
}
