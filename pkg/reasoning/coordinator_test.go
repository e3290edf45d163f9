package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/escalation"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func testObservation(confidence float64) contracts.Observation {
	return contracts.Observation{
		ZoneID:      "Sector-1",
		Category:    "wildfire",
		Name:        "Forest Fire",
		Confidence:  confidence,
		Description: "Smoke plume over the north ridge",
		Coordinates: contracts.Coordinates{Lat: 40.7128, Lng: -74.0060},
		EvidenceRef: "neofs://neoguard/incident_Sector-1_1772357400.mp4",
		DetectedAt:  testNow,
	}
}

func judging(name string, report bool, confidence float64) Backend {
	return BackendFunc{ID: name, Fn: func(context.Context, contracts.Observation, contracts.NetworkState) (contracts.Judgment, error) {
		return contracts.StructuredJudgment("", report, confidence, name+" says so", testNow), nil
	}}
}

func failing(name string) Backend {
	return BackendFunc{ID: name, Fn: func(context.Context, contracts.Observation, contracts.NetworkState) (contracts.Judgment, error) {
		return contracts.Judgment{}, errors.New("service unavailable")
	}}
}

func coordinator(primary, fallback Backend) *Coordinator {
	return NewCoordinator(Role{Backend: primary, Timeout: time.Second}, Role{Backend: fallback, Timeout: time.Second}).
		WithClock(func() time.Time { return testNow })
}

func TestCoordinator_BothSucceedFallbackWins(t *testing.T) {
	c := coordinator(judging("spoon", true, 95), judging("gemini", true, 90))

	d := c.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())
	assert.True(t, d.ShouldReport)
	assert.Equal(t, contracts.ModeHybrid, d.Mode)
	assert.Equal(t, contracts.BasisFallback, d.Basis)
	assert.Equal(t, 90.0, d.Confidence)
	assert.True(t, d.PrimaryAvailable())
	require.Len(t, d.Judgments, 2)
	assert.Equal(t, contracts.SourcePrimary, d.Judgments[0].Source)
	assert.Equal(t, contracts.SourceFallback, d.Judgments[1].Source)
}

func TestCoordinator_DisagreementResolvedByFallback(t *testing.T) {
	c := coordinator(judging("spoon", true, 99), judging("gemini", false, 60))

	d := c.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())
	assert.False(t, d.ShouldReport)
	assert.Equal(t, contracts.ModeHybrid, d.Mode)
}

func TestCoordinator_PrimaryFailsFallbackOnly(t *testing.T) {
	c := coordinator(failing("spoon"), judging("gemini", false, 40))

	d := c.Evaluate(context.Background(), testObservation(0.92), contracts.DefaultNetworkState())
	assert.False(t, d.ShouldReport)
	assert.Equal(t, 40.0, d.Confidence)
	assert.Equal(t, contracts.ModeFallbackOnly, d.Mode)
	assert.Equal(t, contracts.BasisFallback, d.Basis)
	assert.False(t, d.PrimaryAvailable())
	require.Len(t, d.Judgments, 1)
}

func TestCoordinator_FallbackFailsPrimaryOnly(t *testing.T) {
	c := coordinator(judging("spoon", true, 80), failing("gemini"))

	d := c.Evaluate(context.Background(), testObservation(0.92), contracts.DefaultNetworkState())
	assert.True(t, d.ShouldReport)
	assert.Equal(t, contracts.ModePrimaryOnly, d.Mode)
	assert.Equal(t, contracts.BasisPrimary, d.Basis)
}

func TestCoordinator_BothFailThresholdOnly(t *testing.T) {
	c := coordinator(failing("spoon"), failing("gemini"))

	d := c.Evaluate(context.Background(), testObservation(0.60), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.BasisThresholdOnly, d.Basis)
	assert.Equal(t, contracts.ModeNone, d.Mode)
	assert.False(t, d.ShouldReport)
	assert.InDelta(t, 60.0, d.Confidence, 1e-9)
	assert.Empty(t, d.Judgments)
}

func TestCoordinator_ThresholdOnlyCarriesNumericRule(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		threshold  float64
		want       bool
	}{
		{"above default threshold", 0.90, escalation.DefaultThreshold, true},
		{"tie at default threshold", 0.75, escalation.DefaultThreshold, true},
		{"below default threshold", 0.60, escalation.DefaultThreshold, false},
		{"configured threshold", 0.90, 0.95, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := coordinator(failing("spoon"), failing("gemini")).WithThreshold(tt.threshold)
			d := c.Evaluate(context.Background(), testObservation(tt.confidence), contracts.DefaultNetworkState())
			assert.Equal(t, contracts.BasisThresholdOnly, d.Basis)
			assert.Equal(t, tt.want, d.ShouldReport)
			assert.InDelta(t, tt.confidence*100, d.Confidence, 1e-9)
		})
	}
}

func TestCoordinator_BothDisabled(t *testing.T) {
	d := coordinator(nil, nil).Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.BasisThresholdOnly, d.Basis)
}

func TestCoordinator_PanicIsIsolated(t *testing.T) {
	boom := BackendFunc{ID: "boom", Fn: func(context.Context, contracts.Observation, contracts.NetworkState) (contracts.Judgment, error) {
		panic("nil map write")
	}}
	c := coordinator(boom, judging("gemini", true, 70))

	d := c.Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.ModeFallbackOnly, d.Mode)
	assert.True(t, d.ShouldReport)
}

func TestCoordinator_TimeoutAbandonsStuckBackend(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stuck := BackendFunc{ID: "stuck", Fn: func(context.Context, contracts.Observation, contracts.NetworkState) (contracts.Judgment, error) {
		<-release
		return contracts.StructuredJudgment("", true, 99, "late", testNow), nil
	}}
	c := NewCoordinator(Role{Backend: stuck, Timeout: 30 * time.Millisecond}, Role{Backend: judging("gemini", false, 20), Timeout: time.Second})

	start := time.Now()
	d := c.Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, contracts.ModeFallbackOnly, d.Mode)
	assert.False(t, d.ShouldReport)
}

func TestCoordinator_RunsBackendsConcurrently(t *testing.T) {
	slow := func(name string) Backend {
		return BackendFunc{ID: name, Fn: func(ctx context.Context, _ contracts.Observation, _ contracts.NetworkState) (contracts.Judgment, error) {
			time.Sleep(150 * time.Millisecond)
			return contracts.StructuredJudgment("", true, 50, name, testNow), nil
		}}
	}
	c := coordinator(slow("a"), slow("b"))

	start := time.Now()
	d := c.Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	assert.Less(t, time.Since(start), 290*time.Millisecond)
	assert.Equal(t, contracts.ModeHybrid, d.Mode)
}

func TestCoordinator_CancelledContextDoesNotCutCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	observed := BackendFunc{ID: "ctx-aware", Fn: func(ctx context.Context, _ contracts.Observation, _ contracts.NetworkState) (contracts.Judgment, error) {
		if err := ctx.Err(); err != nil {
			return contracts.Judgment{}, err
		}
		return contracts.StructuredJudgment("", true, 88, "ok", testNow), nil
	}}
	d := coordinator(observed, nil).Evaluate(ctx, testObservation(0.9), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.ModePrimaryOnly, d.Mode)
}

func TestCoordinator_UnstructuredJudgmentIsKept(t *testing.T) {
	rambling := BackendFunc{ID: "gemini", Fn: func(context.Context, contracts.Observation, contracts.NetworkState) (contracts.Judgment, error) {
		return contracts.UnstructuredJudgment("", "I think you should probably report it.", testNow), nil
	}}
	d := coordinator(nil, rambling).Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.ModeFallbackOnly, d.Mode)
	assert.True(t, d.ShouldReport)
	assert.Equal(t, contracts.UnstructuredConfidence, d.Confidence)
	require.Len(t, d.Judgments, 1)
	assert.Equal(t, contracts.JudgmentUnstructured, d.Judgments[0].Kind)
	assert.Equal(t, contracts.SourceFallback, d.Judgments[0].Source)
}

func TestBackendError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&BackendError{Backend: "spoon", Op: "chat", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "reasoning: backend spoon: chat: dial tcp: refused", err.Error())
}

func TestProperty_MergeIsTotal(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genJudgment := func(present, report bool, conf float64) *contracts.Judgment {
		if !present {
			return nil
		}
		j := contracts.StructuredJudgment(contracts.SourcePrimary, report, conf, "", testNow)
		return &j
	}

	properties.Property("every combination yields a consistent decision", prop.ForAll(
		func(pOK, fOK, pReport, fReport bool, pConf, fConf, obsConf, threshold float64) bool {
			p := genJudgment(pOK, pReport, pConf)
			f := genJudgment(fOK, fReport, fConf)
			d := Merge(testObservation(obsConf), p, f, threshold)

			switch {
			case pOK && fOK:
				return d.Mode == contracts.ModeHybrid && d.ShouldReport == fReport && d.Confidence == f.Confidence
			case fOK:
				return d.Mode == contracts.ModeFallbackOnly && d.ShouldReport == fReport
			case pOK:
				return d.Mode == contracts.ModePrimaryOnly && d.ShouldReport == pReport
			default:
				return d.Mode == contracts.ModeNone && d.Basis == contracts.BasisThresholdOnly &&
					d.ShouldReport == (obsConf >= threshold)
			}
		},
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
		gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
