package escalation

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// RuleChannel approves requests by evaluating a CEL expression instead of
// asking a human. The expression sees two variables:
//
//	observation: zone_id, category, name, confidence (0..1), description, evidence_ref
//	decision:    should_report, confidence (0..100), basis, mode
//
// Example: observation.confidence >= 0.9 && decision.mode == "hybrid"
type RuleChannel struct {
	expr string
	prg  cel.Program
}

// NewRuleChannel compiles expr. Compilation errors are returned immediately
// so a bad rule fails at startup.
func NewRuleChannel(expr string) (*RuleChannel, error) {
	env, err := cel.NewEnv(
		cel.Variable("observation", cel.DynType),
		cel.Variable("decision", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("rule: create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule: compile: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("rule: program: %w", err)
	}
	return &RuleChannel{expr: expr, prg: prg}, nil
}

// RequestApproval evaluates the rule against req. A rule that errors or does
// not yield a bool is a channel failure, which the gate resolves as rejected.
func (c *RuleChannel) RequestApproval(ctx context.Context, req Request) (Response, error) {
	input := map[string]any{
		"observation": map[string]any{
			"zone_id":      req.Observation.ZoneID,
			"category":     req.Observation.Category,
			"name":         req.Observation.Name,
			"confidence":   req.Observation.Confidence,
			"description":  req.Observation.Description,
			"evidence_ref": req.Observation.EvidenceRef,
		},
		"decision": map[string]any{
			"should_report": req.Decision.ShouldReport,
			"confidence":    req.Decision.Confidence,
			"basis":         string(req.Decision.Basis),
			"mode":          string(req.Decision.Mode),
		},
	}

	out, _, err := c.prg.ContextEval(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("rule: eval: %w", err)
	}
	approved, ok := out.Value().(bool)
	if !ok {
		return Response{}, fmt.Errorf("rule: result not bool")
	}

	resp := Response{Approved: approved, Approver: "rule"}
	if approved {
		resp.Reason = "rule matched: " + c.expr
	} else {
		resp.Reason = "rule not matched: " + c.expr
	}
	return resp, nil
}
