package contracts

import "time"

// CycleState is the position of an observation in the patrol state machine:
//
//	Detected -> Analyzed -> {Escalated | PendingApproval} -> {Rejected | Committed | CommitFailed}
//
// Clear, Failed, Aborted and Duplicate end a cycle outside the main path.
// Failed marks a cycle cut short by a broken integration; it is held.
type CycleState string

const (
	StateClear           CycleState = "CLEAR"
	StateDetected        CycleState = "DETECTED"
	StateAnalyzed        CycleState = "ANALYZED"
	StateEscalated       CycleState = "ESCALATED" // held for human review
	StatePendingApproval CycleState = "PENDING_APPROVAL"
	StateRejected        CycleState = "REJECTED"
	StateCommitted       CycleState = "COMMITTED"
	StateCommitFailed    CycleState = "COMMIT_FAILED"
	StateDuplicate       CycleState = "DUPLICATE"
	StateAborted         CycleState = "ABORTED"
	StateFailed          CycleState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s CycleState) Terminal() bool {
	switch s {
	case StateClear, StateEscalated, StateRejected, StateCommitted,
		StateCommitFailed, StateDuplicate, StateAborted, StateFailed:
		return true
	}
	return false
}

var cycleTransitions = map[CycleState][]CycleState{
	StateDetected:        {StateAnalyzed, StateFailed},
	StateAnalyzed:        {StateEscalated, StatePendingApproval, StateDuplicate, StateAborted, StateFailed},
	StatePendingApproval: {StateRejected, StateCommitted, StateCommitFailed, StateDuplicate, StateAborted},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to CycleState) bool {
	for _, next := range cycleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CycleResult is the fully resolved outcome of one patrol cycle.
type CycleResult struct {
	CycleID     string           `json:"cycle_id"`
	ZoneID      string           `json:"zone_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	State       CycleState       `json:"state"`
	Path        []CycleState     `json:"path"`
	Observation *Observation     `json:"observation,omitempty"`
	Decision    *Decision        `json:"decision,omitempty"`
	Approval    *ApprovalOutcome `json:"approval,omitempty"`
	Receipt     *Receipt         `json:"receipt,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Err         string           `json:"error,omitempty"`
}

// Reported reports whether the cycle produced a ledger receipt.
func (r CycleResult) Reported() bool {
	return r.State == StateCommitted && r.Receipt != nil
}
