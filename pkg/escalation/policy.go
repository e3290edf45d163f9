// Package escalation decides whether an analyzed observation is escalated to
// the ledger and gates that escalation behind a human approval.
//
// Decide is the deterministic policy. Gate runs the approval round trip over a
// Channel and produces an ApprovalOutcome for every request, whatever the
// channel does.
package escalation

import "github.com/Mindburn-Labs/sentinel/pkg/contracts"

// DefaultThreshold is the confidence threshold used when none is configured.
const DefaultThreshold = 0.75

// Decide reports whether obs must be escalated given the merged decision.
//
// The decision is authoritative. A threshold-only decision already carries
// obs.Confidence >= threshold as ShouldReport, so a tie escalates.
func Decide(_ contracts.Observation, decision contracts.Decision) bool {
	return decision.ShouldReport
}

// MeetsThreshold is the numeric escalation rule. Ties favour caution.
func MeetsThreshold(confidence, threshold float64) bool {
	return confidence >= threshold
}
