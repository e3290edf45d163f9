package contracts

import "time"

// JudgmentSource identifies which reasoning backend produced a judgment.
type JudgmentSource string

const (
	SourcePrimary  JudgmentSource = "primary"
	SourceFallback JudgmentSource = "fallback"
)

// JudgmentKind tags how a backend reply was interpreted.
type JudgmentKind string

const (
	// JudgmentStructured is a reply that parsed into the judgment fields.
	JudgmentStructured JudgmentKind = "structured"
	// JudgmentUnstructured wraps free text the backend returned instead of
	// structured fields. The raw text is kept as the rationale.
	JudgmentUnstructured JudgmentKind = "unstructured"
)

// UnstructuredConfidence is the confidence assigned to unstructured judgments.
const UnstructuredConfidence = 10.0

// Judgment is the opinion of a single reasoning backend about one observation.
type Judgment struct {
	Source       JudgmentSource `json:"source"`
	Kind         JudgmentKind   `json:"kind"`
	ShouldReport bool           `json:"should_report"`
	Confidence   float64        `json:"confidence"` // 0..100
	Rationale    string         `json:"rationale"`
	ProducedAt   time.Time      `json:"produced_at"`
}

// StructuredJudgment builds a judgment from parsed backend fields.
func StructuredJudgment(src JudgmentSource, shouldReport bool, confidence float64, rationale string, at time.Time) Judgment {
	return Judgment{
		Source:       src,
		Kind:         JudgmentStructured,
		ShouldReport: shouldReport,
		Confidence:   clamp(confidence, 0, 100),
		Rationale:    rationale,
		ProducedAt:   at,
	}
}

// UnstructuredJudgment wraps raw backend text. It leans towards reporting so
// the observation still reaches a human at the approval step.
func UnstructuredJudgment(src JudgmentSource, raw string, at time.Time) Judgment {
	return Judgment{
		Source:       src,
		Kind:         JudgmentUnstructured,
		ShouldReport: true,
		Confidence:   UnstructuredConfidence,
		Rationale:    raw,
		ProducedAt:   at,
	}
}

// DecisionBasis names the input a decision was taken from.
type DecisionBasis string

const (
	BasisPrimary       DecisionBasis = "primary"
	BasisFallback      DecisionBasis = "fallback"
	BasisThresholdOnly DecisionBasis = "threshold-only"
)

// CollaborationMode records which backends contributed to a decision.
type CollaborationMode string

const (
	ModePrimaryOnly  CollaborationMode = "primary-only"
	ModeFallbackOnly CollaborationMode = "fallback-only"
	ModeHybrid       CollaborationMode = "hybrid"
	ModeNone         CollaborationMode = "none"
)

// Decision is the merged verdict for one observation.
type Decision struct {
	ShouldReport bool              `json:"should_report"`
	Confidence   float64           `json:"confidence"` // 0..100
	Basis        DecisionBasis     `json:"basis"`
	Mode         CollaborationMode `json:"collaboration_mode"`
	Rationale    string            `json:"rationale,omitempty"`
	Judgments    []Judgment        `json:"judgments,omitempty"`
}

// PrimaryAvailable reports whether the primary backend contributed a judgment.
func (d Decision) PrimaryAvailable() bool {
	return d.Mode == ModePrimaryOnly || d.Mode == ModeHybrid
}

// ApprovalOutcome is the answer of the approval channel for one observation.
type ApprovalOutcome struct {
	RequestID   string    `json:"request_id"`
	Approved    bool      `json:"approved"`
	Approver    string    `json:"approver,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Receipt proves a ledger commit succeeded.
type Receipt struct {
	ReceiptID         string    `json:"receipt_id"`
	Fingerprint       string    `json:"fingerprint"`
	ExternalReference string    `json:"external_reference"`
	CommittedAt       time.Time `json:"committed_at"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
