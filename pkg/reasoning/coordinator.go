package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/escalation"
)

// DefaultBackendTimeout bounds a backend call when none is configured.
const DefaultBackendTimeout = 30 * time.Second

var errCallTimeout = errors.New("call exceeded timeout")

// Role binds a backend to its per-call timeout. A nil Backend disables the role.
type Role struct {
	Backend Backend
	Timeout time.Duration
}

// Outcome is the raw result of one role for one observation.
type Outcome struct {
	Judgment *contracts.Judgment
	Err      error
	Elapsed  time.Duration
}

// Coordinator consults both roles and merges their judgments.
type Coordinator struct {
	primary   Role
	fallback  Role
	threshold float64
	clock     func() time.Time
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator. Either role may be disabled.
func NewCoordinator(primary, fallback Role) *Coordinator {
	return &Coordinator{
		primary:   withDefaultTimeout(primary),
		fallback:  withDefaultTimeout(fallback),
		threshold: escalation.DefaultThreshold,
		clock:     time.Now,
		logger:    slog.Default().With("component", "reasoning"),
	}
}

func withDefaultTimeout(r Role) Role {
	if r.Timeout <= 0 {
		r.Timeout = DefaultBackendTimeout
	}
	return r
}

// WithThreshold sets the confidence threshold applied when no backend answers.
func (c *Coordinator) WithThreshold(threshold float64) *Coordinator {
	c.threshold = threshold
	return c
}

// WithClock overrides the clock for deterministic testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// WithLogger sets the logger.
func (c *Coordinator) WithLogger(l *slog.Logger) *Coordinator {
	c.logger = l.With("component", "reasoning")
	return c
}

// Evaluate returns exactly one decision for obs. It never fails: backend
// errors, timeouts and panics only remove that backend's judgment.
//
// Both roles run concurrently on a context detached from ctx's cancellation,
// so a shutdown request does not cut an in-flight call short. Each call is
// still bounded by its role timeout.
func (c *Coordinator) Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) contracts.Decision {
	ctx, span := otel.Tracer("sentinel/reasoning").Start(ctx, "reasoning.evaluate")
	defer span.End()

	detached := context.WithoutCancel(ctx)

	var (
		wg                      sync.WaitGroup
		primaryOut, fallbackOut Outcome
	)
	if c.primary.Backend != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			primaryOut = c.call(detached, c.primary, contracts.SourcePrimary, obs, net)
		}()
	}
	if c.fallback.Backend != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fallbackOut = c.call(detached, c.fallback, contracts.SourceFallback, obs, net)
		}()
	}
	wg.Wait()

	c.logOutcome(ctx, c.primary, contracts.SourcePrimary, primaryOut)
	c.logOutcome(ctx, c.fallback, contracts.SourceFallback, fallbackOut)

	d := Merge(obs, primaryOut.Judgment, fallbackOut.Judgment, c.threshold)
	span.SetAttributes(
		attribute.String("decision.basis", string(d.Basis)),
		attribute.String("decision.mode", string(d.Mode)),
		attribute.Bool("decision.should_report", d.ShouldReport),
	)
	return d
}

// call runs one backend with its timeout. The backend runs in its own
// goroutine so a call that ignores ctx is abandoned at the deadline.
func (c *Coordinator) call(ctx context.Context, role Role, src contracts.JudgmentSource, obs contracts.Observation, net contracts.NetworkState) Outcome {
	name := role.Backend.Name()
	ctx, span := otel.Tracer("sentinel/reasoning").Start(ctx, "reasoning.backend")
	span.SetAttributes(attribute.String("backend.name", name), attribute.String("backend.role", string(src)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, role.Timeout)
	defer cancel()

	type result struct {
		j   contracts.Judgment
		err error
	}
	done := make(chan result, 1)
	start := c.clock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &BackendError{Backend: name, Op: "evaluate", Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		j, err := role.Backend.Evaluate(callCtx, obs, net)
		done <- result{j: j, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: &BackendError{Backend: name, Op: "evaluate", Err: errors.Join(errCallTimeout, callCtx.Err())}}
	}
	out := Outcome{Elapsed: c.clock().Sub(start)}

	if res.err != nil {
		var be *BackendError
		if !errors.As(res.err, &be) {
			res.err = &BackendError{Backend: name, Op: "evaluate", Err: res.err}
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		out.Err = res.err
		return out
	}

	j := res.j
	j.Source = src
	if j.Kind == "" {
		j.Kind = contracts.JudgmentStructured
	}
	if j.ProducedAt.IsZero() {
		j.ProducedAt = c.clock()
	}
	span.SetAttributes(attribute.String("judgment.kind", string(j.Kind)))
	out.Judgment = &j
	return out
}

func (c *Coordinator) logOutcome(ctx context.Context, role Role, src contracts.JudgmentSource, out Outcome) {
	if role.Backend == nil {
		return
	}
	name := role.Backend.Name()
	if out.Err != nil {
		c.logger.WarnContext(ctx, "backend unavailable", "role", src, "backend", name, "elapsed", out.Elapsed, "error", out.Err)
		return
	}
	c.logger.DebugContext(ctx, "backend judgment",
		"role", src,
		"backend", name,
		"kind", out.Judgment.Kind,
		"should_report", out.Judgment.ShouldReport,
		"confidence", out.Judgment.Confidence,
		"elapsed", out.Elapsed,
	)
}

// Merge combines the judgments into a decision:
//
//	both present      -> fallback wins, mode hybrid
//	only fallback     -> fallback, mode fallback-only
//	only primary      -> primary, mode primary-only
//	neither           -> threshold-only, mode none
//
// A threshold-only decision reports iff obs.Confidence >= threshold and
// carries the observation confidence scaled to 0..100.
func Merge(obs contracts.Observation, primary, fallback *contracts.Judgment, threshold float64) contracts.Decision {
	var judgments []contracts.Judgment
	if primary != nil {
		judgments = append(judgments, *primary)
	}
	if fallback != nil {
		judgments = append(judgments, *fallback)
	}

	switch {
	case fallback != nil:
		mode := contracts.ModeFallbackOnly
		if primary != nil {
			mode = contracts.ModeHybrid
		}
		return fromJudgment(*fallback, contracts.BasisFallback, mode, judgments)
	case primary != nil:
		return fromJudgment(*primary, contracts.BasisPrimary, contracts.ModePrimaryOnly, judgments)
	default:
		return contracts.Decision{
			ShouldReport: escalation.MeetsThreshold(obs.Confidence, threshold),
			Confidence:   obs.Confidence * 100,
			Basis:        contracts.BasisThresholdOnly,
			Mode:         contracts.ModeNone,
			Rationale:    "no reasoning backend available",
		}
	}
}

func fromJudgment(j contracts.Judgment, basis contracts.DecisionBasis, mode contracts.CollaborationMode, all []contracts.Judgment) contracts.Decision {
	return contracts.Decision{
		ShouldReport: j.ShouldReport,
		Confidence:   j.Confidence,
		Basis:        basis,
		Mode:         mode,
		Rationale:    j.Rationale,
		Judgments:    all,
	}
}
