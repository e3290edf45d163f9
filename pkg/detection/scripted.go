package detection

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// Step is one scripted poll result.
type Step struct {
	Observation *contracts.Observation
	Err         error
}

// Clear is a step that detects nothing.
var Clear = Step{}

// Detect returns a step yielding obs.
func Detect(obs contracts.Observation) Step {
	return Step{Observation: &obs}
}

// Fail returns a step whose poll fails with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedSource replays a fixed sequence of poll results, then reports
// clear. It is safe for concurrent use.
type ScriptedSource struct {
	mu    sync.Mutex
	steps []Step
	polls []string
}

func NewScriptedSource(steps ...Step) *ScriptedSource {
	return &ScriptedSource{steps: steps}
}

func (s *ScriptedSource) Poll(ctx context.Context, zoneID string) (*contracts.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls = append(s.polls, zoneID)
	if len(s.steps) == 0 {
		return nil, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil || step.Observation == nil {
		return nil, step.Err
	}
	obs := *step.Observation
	if obs.ZoneID == "" {
		obs.ZoneID = zoneID
	}
	return &obs, nil
}

// Polls returns the zones polled so far, in order.
func (s *ScriptedSource) Polls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.polls...)
}

// Remaining returns the number of unconsumed steps.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
