package reasoning

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// Severity by incident category, 0..100.
var defaultSeverity = map[string]float64{
	"wildfire":      95,
	"mass_casualty": 95,
	"flood":         85,
	"accident":      70,
}

const unknownSeverity = 50

// HeuristicBackend judges offline from category severity and detector
// confidence. It needs no network and is deterministic.
type HeuristicBackend struct {
	name string
	// MinSeverity is the severity at or above which an incident is reported
	// regardless of detector confidence above MinConfidence.
	MinSeverity float64
	// MinConfidence is the detector confidence below which nothing is reported.
	MinConfidence float64
	clock         func() time.Time
}

func NewHeuristicBackend(name string) *HeuristicBackend {
	if name == "" {
		name = "heuristic"
	}
	return &HeuristicBackend{
		name:          name,
		MinSeverity:   70,
		MinConfidence: 0.5,
		clock:         time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (b *HeuristicBackend) WithClock(clock func() time.Time) *HeuristicBackend {
	b.clock = clock
	return b
}

func (b *HeuristicBackend) Name() string { return b.name }

func (b *HeuristicBackend) Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) (contracts.Judgment, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Judgment{}, &BackendError{Backend: b.name, Op: "evaluate", Err: err}
	}

	severity, known := defaultSeverity[strings.ToLower(obs.Category)]
	if !known {
		severity = unknownSeverity
	}

	report := obs.Confidence >= b.MinConfidence && severity >= b.MinSeverity
	// Weight detector confidence by severity: a certain wildfire scores 100,
	// a certain unknown anomaly 75.
	confidence := math.Round(obs.Confidence * (50 + severity/2))

	rationale := fmt.Sprintf("%s severity %.0f, detector confidence %.0f%%, %d/%d units active",
		obs.Label(), severity, obs.Confidence*100, net.ActiveUnits, net.TotalUnits)
	if !known {
		rationale += ", category not recognised"
	}

	return contracts.StructuredJudgment("", report, confidence, rationale, b.clock()), nil
}
