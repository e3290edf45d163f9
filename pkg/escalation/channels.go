package escalation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PromptChannel asks an operator on a line-oriented terminal. Only "y" or
// "yes" approves; anything else, including EOF, rejects.
type PromptChannel struct {
	in       io.Reader
	out      io.Writer
	approver string

	once  sync.Once
	lines chan string
}

// NewPromptChannel creates a channel reading answers from in and writing
// prompts to out.
func NewPromptChannel(in io.Reader, out io.Writer, approver string) *PromptChannel {
	if approver == "" {
		approver = "operator"
	}
	return &PromptChannel{in: in, out: out, approver: approver}
}

// start launches a single reader so an abandoned prompt does not leave a
// second goroutine competing for input.
func (c *PromptChannel) start() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
}

func (c *PromptChannel) RequestApproval(ctx context.Context, req Request) (Response, error) {
	c.once.Do(c.start)

	obs := req.Observation
	_, err := fmt.Fprintf(c.out,
		"\nApproval required [%s]\n  zone:       %s\n  incident:   %s (%.0f%%)\n  decision:   report=%t confidence=%.0f basis=%s mode=%s\n  evidence:   %s\nSubmit to ledger? [y/N]: ",
		req.RequestID, obs.ZoneID, obs.Label(), obs.Confidence*100,
		req.Decision.ShouldReport, req.Decision.Confidence, req.Decision.Basis, req.Decision.Mode,
		obs.EvidenceRef)
	if err != nil {
		return Response{}, fmt.Errorf("prompt: write: %w", err)
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return Response{Approver: c.approver, Reason: "input closed"}, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			return Response{Approved: true, Approver: c.approver, Reason: "approved at prompt"}, nil
		}
		return Response{Approver: c.approver, Reason: "declined at prompt"}, nil
	}
}

// DenyChannel rejects every request. It keeps unattended runs from
// committing anything.
type DenyChannel struct{}

func (DenyChannel) RequestApproval(context.Context, Request) (Response, error) {
	return Response{Approver: "deny", Reason: "unattended run: approvals disabled"}, nil
}
