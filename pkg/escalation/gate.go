package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// ErrApprovalTimeout is returned when the channel did not answer in time.
var ErrApprovalTimeout = errors.New("approval timed out")

// DefaultTimeout bounds a single approval round trip.
const DefaultTimeout = 5 * time.Minute

// Status tracks the lifecycle of an approval request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusTimedOut Status = "TIMED_OUT"
	StatusFailed   Status = "FAILED"
)

// Request is what an approver sees.
type Request struct {
	RequestID   string                `json:"request_id"`
	Observation contracts.Observation `json:"observation"`
	Decision    contracts.Decision    `json:"decision"`
	RequestedAt time.Time             `json:"requested_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
}

// Response is the approver's answer.
type Response struct {
	Approved bool
	Approver string
	Reason   string
}

// Channel is the human-facing approval mechanism.
type Channel interface {
	RequestApproval(ctx context.Context, req Request) (Response, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, req Request) (Response, error)

func (f ChannelFunc) RequestApproval(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// DefaultHistory is the number of resolved requests a gate remembers.
const DefaultHistory = 64

// Gate performs blocking approval round trips and tracks their status.
type Gate struct {
	channel Channel
	timeout time.Duration
	clock   func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	statuses map[string]Status
	resolved []string // resolved request IDs, oldest first
	history  int
}

// NewGate creates a gate over channel. A non-positive timeout selects DefaultTimeout.
func NewGate(channel Channel, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		channel:  channel,
		timeout:  timeout,
		clock:    time.Now,
		logger:   slog.Default().With("component", "approval"),
		statuses: make(map[string]Status),
		history:  DefaultHistory,
	}
}

// WithHistory sets how many resolved requests stay queryable through Status.
func (g *Gate) WithHistory(n int) *Gate {
	if n < 0 {
		n = 0
	}
	g.history = n
	return g
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithLogger sets the logger.
func (g *Gate) WithLogger(l *slog.Logger) *Gate {
	g.logger = l.With("component", "approval")
	return g
}

// Request asks the channel to approve escalating obs and blocks until it
// answers or the gate timeout expires. The returned outcome is always
// populated; it is approved only on an explicit positive answer. A rejection
// is a normal outcome with a nil error.
func (g *Gate) Request(ctx context.Context, obs contracts.Observation, decision contracts.Decision) (contracts.ApprovalOutcome, error) {
	now := g.clock()
	req := Request{
		RequestID:   uuid.New().String(),
		Observation: obs,
		Decision:    decision,
		RequestedAt: now,
		ExpiresAt:   now.Add(g.timeout),
	}
	g.setStatus(req.RequestID, StatusPending)

	outcome := contracts.ApprovalOutcome{
		RequestID:   req.RequestID,
		RequestedAt: now,
	}

	if g.channel == nil {
		outcome.ResolvedAt = g.clock()
		outcome.Reason = "no approval channel configured"
		g.setStatus(req.RequestID, StatusFailed)
		return outcome, fmt.Errorf("approval: no channel configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.ask(callCtx, req)
	outcome.ResolvedAt = g.clock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.setStatus(req.RequestID, StatusTimedOut)
			outcome.Reason = ErrApprovalTimeout.Error()
			g.logger.WarnContext(ctx, "approval timed out", "request_id", req.RequestID, "zone", obs.ZoneID)
			return outcome, ErrApprovalTimeout
		}
		g.setStatus(req.RequestID, StatusFailed)
		outcome.Reason = err.Error()
		g.logger.ErrorContext(ctx, "approval channel failed", "request_id", req.RequestID, "error", err)
		return outcome, fmt.Errorf("approval: %w", err)
	}

	outcome.Approved = resp.Approved
	outcome.Approver = resp.Approver
	outcome.Reason = resp.Reason
	if resp.Approved {
		g.setStatus(req.RequestID, StatusApproved)
		g.logger.InfoContext(ctx, "approval granted", "request_id", req.RequestID, "approver", resp.Approver)
	} else {
		g.setStatus(req.RequestID, StatusDenied)
		g.logger.InfoContext(ctx, "approval rejected", "request_id", req.RequestID, "approver", resp.Approver, "reason", resp.Reason)
	}
	return outcome, nil
}

// Status returns the status of a request by ID.
func (g *Gate) Status(requestID string) (Status, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.statuses[requestID]
	return s, ok
}

// PendingCount returns the number of requests awaiting an answer.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, s := range g.statuses {
		if s == StatusPending {
			count++
		}
	}
	return count
}

// ask calls the channel. A panicking channel is reported as a channel error.
func (g *Gate) ask(ctx context.Context, req Request) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = Response{}, fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return g.channel.RequestApproval(ctx, req)
}

// setStatus records s for id. Resolved requests are kept up to the history
// limit, oldest evicted first.
func (g *Gate) setStatus(id string, s Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.statuses[id] = s
	if s == StatusPending {
		return
	}
	g.resolved = append(g.resolved, id)
	for len(g.resolved) > g.history {
		delete(g.statuses, g.resolved[0])
		g.resolved = g.resolved[1:]
	}
}
