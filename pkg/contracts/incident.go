// Package contracts defines the data exchanged along the patrol decision
// pipeline: observations from the detection feed, judgments from reasoning
// backends, the merged decision, the human approval outcome, and the ledger
// receipt.
//
// All values are plain data. Once produced they are passed by value and never
// mutated by downstream stages.
package contracts

import "time"

// Coordinates locates an observation.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Observation is one anomaly reported by the detection feed for a zone.
type Observation struct {
	ZoneID      string      `json:"zone_id"`
	Category    string      `json:"category"`
	Name        string      `json:"name,omitempty"`
	Confidence  float64     `json:"confidence"` // 0..1
	Description string      `json:"description"`
	Coordinates Coordinates `json:"coordinates"`
	EvidenceRef string      `json:"evidence_ref"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// Label returns the human label of the observation, falling back to its category.
func (o Observation) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Category
}

// NetworkState summarizes the patrol fleet. It is handed to reasoning
// backends as context for their judgment.
type NetworkState struct {
	TotalUnits     int    `json:"total_units"`
	ActiveUnits    int    `json:"active_units"`
	AverageBattery int    `json:"average_battery"`
	Status         string `json:"network_status"`
}

// DefaultNetworkState is used when the detection source cannot report fleet status.
func DefaultNetworkState() NetworkState {
	return NetworkState{
		TotalUnits:     3,
		ActiveUnits:    2,
		AverageBattery: 75,
		Status:         "operational",
	}
}
