package patrol

import (
	"time"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// SessionStats summarizes a patrol session. Only the scheduler mutates it,
// once per finished cycle.
type SessionStats struct {
	Detected     int  `json:"detected"`
	Reported     int  `json:"reported"`
	FallbackUsed bool `json:"fallback_used"`

	Cycles       int `json:"cycles"`
	Clear        int `json:"clear"`
	Held         int `json:"held"`
	Rejected     int `json:"rejected"`
	CommitFailed int `json:"commit_failed"`
	Duplicates   int `json:"duplicates"`
	Aborted      int `json:"aborted"`
	Failed       int `json:"failed"`

	StartedAt time.Time `json:"started_at"`
	LastCheck time.Time `json:"last_check"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}

// SuccessRate is the share of detections that reached the ledger, in percent.
func (s SessionStats) SuccessRate() float64 {
	detected := s.Detected
	if detected < 1 {
		detected = 1
	}
	return float64(s.Reported) / float64(detected) * 100
}

// record folds a finished cycle into the statistics.
func (s *SessionStats) record(res contracts.CycleResult) {
	s.Cycles++
	s.LastCheck = res.FinishedAt
	if res.Observation != nil {
		s.Detected++
	}
	if res.Decision != nil && !res.Decision.PrimaryAvailable() {
		s.FallbackUsed = true
	}

	switch res.State {
	case contracts.StateClear:
		s.Clear++
	case contracts.StateEscalated:
		s.Held++
	case contracts.StateRejected:
		s.Rejected++
	case contracts.StateCommitted:
		if res.Reported() {
			s.Reported++
		}
	case contracts.StateCommitFailed:
		s.CommitFailed++
	case contracts.StateDuplicate:
		s.Duplicates++
	case contracts.StateAborted:
		s.Aborted++
	case contracts.StateFailed:
		s.Failed++
	}
}
